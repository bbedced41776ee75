package protocol

// PDU types (fits in uint8, mirrored in the header type field)
const (
	MsgUnknown uint8 = iota
	MsgGet            // read one or more variables
	MsgGetNext        // read the lexicographic successors
	MsgSet            // write variables
	MsgReport         // agent reply carrying bindings
	MsgAck            // bare acknowledgement, no bindings
	MsgError          // agent-side failure report
)

// Flags bitmask (uint32)
const (
	FlagAckRequested uint32 = 1 << 0 // sender expects a reply
	FlagError        uint32 = 1 << 1 // payload carries an error report
	FlagCompressed   uint32 = 1 << 2 // payload compressed
	FlagRetransmit   uint32 = 1 << 3 // resend of an earlier frame
)

// Content-type codes carried in the header so the receiver can pick a
// codec without sniffing the payload.
const (
	ContentCodeJSON  uint8 = 1
	ContentCodeCBOR  uint8 = 2
	ContentCodeProto uint8 = 3
)

// ContentType strings matching the codec registry.
const (
	ContentJSON  = "application/json"
	ContentCBOR  = "application/cbor"
	ContentProto = "application/x-protobuf"
)

// ContentCodeOf maps a content type string to its header code (0 if unknown).
func ContentCodeOf(contentType string) uint8 {
	switch contentType {
	case ContentJSON:
		return ContentCodeJSON
	case ContentCBOR:
		return ContentCodeCBOR
	case ContentProto:
		return ContentCodeProto
	default:
		return 0
	}
}

// ContentTypeOf maps a header code back to its content type string.
func ContentTypeOf(code uint8) string {
	switch code {
	case ContentCodeJSON:
		return ContentJSON
	case ContentCodeCBOR:
		return ContentCBOR
	case ContentCodeProto:
		return ContentProto
	default:
		return ""
	}
}

// Agent error codes carried in PDU.ErrorCode.
const (
	ErrCodeNone uint8 = iota
	ErrCodeNoSuchName
	ErrCodeBadValue
	ErrCodeReadOnly
	ErrCodeGenErr
)
