package protocol

import (
	"encoding/binary"
	"errors"
)

// Fixed header layout (40 bytes) for fast parsing over any channel.
// All integer fields are little-endian.
//
//  0  ..1   Magic   'N''P' (0x504e)
//  2        Version u8
//  3        Type    u8
//  4  ..7   Flags   u32
//  8        ContentCode u8
//  9        Reserved u8
//  10 ..13  RequestID u32
//  14 ..17  PayloadLen u32
//  18 ..25  Source u64
//  26 ..33  Dest   u64
//  34 ..39  Reserved2
const (
	headerSize = 40
	magicWord  = uint16(0x504e) // 'N''P'
)

// Header describes metadata for an envelope. RequestID correlates a reply
// with its outstanding request.
type Header struct {
	Version     uint8
	Type        uint8
	Flags       uint32
	ContentCode uint8
	RequestID   uint32
	PayloadLen  uint32
	Source      uint64
	Dest        uint64
}

// MarshalBinary encodes header to a 40-byte buffer.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:2], magicWord)
	buf[2] = h.Version
	buf[3] = h.Type
	binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
	buf[8] = h.ContentCode
	// buf[9] reserved
	binary.LittleEndian.PutUint32(buf[10:14], h.RequestID)
	binary.LittleEndian.PutUint32(buf[14:18], h.PayloadLen)
	binary.LittleEndian.PutUint64(buf[18:26], h.Source)
	binary.LittleEndian.PutUint64(buf[26:34], h.Dest)
	// 34..39 reserved2 stays zero
	return buf, nil
}

// UnmarshalBinary decodes header from a 40-byte buffer.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < headerSize {
		return errors.New("short header")
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != magicWord {
		return errors.New("bad magic")
	}
	h.Version = buf[2]
	h.Type = buf[3]
	h.Flags = binary.LittleEndian.Uint32(buf[4:8])
	h.ContentCode = buf[8]
	h.RequestID = binary.LittleEndian.Uint32(buf[10:14])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[14:18])
	h.Source = binary.LittleEndian.Uint64(buf[18:26])
	h.Dest = binary.LittleEndian.Uint64(buf[26:34])
	return nil
}

// MarkRetransmit sets FlagRetransmit directly in an already-encoded
// frame, so a resend does not need a second marshal pass.
func MarkRetransmit(frame []byte) {
	if len(frame) < 8 {
		return
	}
	f := binary.LittleEndian.Uint32(frame[4:8])
	binary.LittleEndian.PutUint32(frame[4:8], f|FlagRetransmit)
}
