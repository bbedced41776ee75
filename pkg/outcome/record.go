// Package outcome carries the result of one asynchronous management
// request back to its caller: a reply, a timeout, or a processing error.
package outcome

import (
	"net"
	"time"

	"nmpoll/pkg/protocol"
)

// Record pairs a request with its resolved outcome. It is immutable once
// constructed, so it may be shared across goroutines without locking.
//
// The {response, error} combination encodes the result:
//
//  response set,   error nil  -> success
//  response nil,   error nil  -> timeout (no reply within the deadline)
//  error set                  -> processing failure; response may still be
//                                present when the reply arrived but was
//                                rejected afterwards
type Record struct {
	source  string
	peer    net.Addr
	request *protocol.PDU
	reply   *protocol.PDU
	userObj any
	err     error
	elapsed time.Duration
}

// NewRecord constructs a Record. The request must be non-nil; resolving a
// request that was never issued is a bug in the dispatch layer, so a nil
// request panics rather than producing a malformed record.
//
// A negative elapsed is clamped to 0. Elapsed 0 means "not measured"; see
// Measured.
//
// When both reply and err are nil the record is a timeout, and peer is
// dropped: no reply means no attributable remote party.
func NewRecord(source string, peer net.Addr, request, reply *protocol.PDU, userObj any, elapsed time.Duration, err error) *Record {
	if request == nil {
		panic("outcome: nil request")
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if reply == nil && err == nil {
		peer = nil
	}
	return &Record{
		source:  source,
		peer:    peer,
		request: request,
		reply:   reply,
		userObj: userObj,
		err:     err,
		elapsed: elapsed,
	}
}

// Source identifies the component that resolved the request. Useful when
// one consumer receives outcomes from several clients or sessions.
func (r *Record) Source() string { return r.source }

// PeerAddr is the transport address of the replying party, or nil when no
// reply was attributable (timeout, or failure before any reply).
func (r *Record) PeerAddr() net.Addr { return r.peer }

// Request returns the outbound PDU. Never nil.
func (r *Record) Request() *protocol.PDU { return r.request }

// Response returns the inbound PDU, or nil on timeout or when the request
// failed before a reply arrived.
func (r *Record) Response() *protocol.PDU { return r.reply }

// UserObject returns the caller-supplied context value by identity,
// exactly as it was passed at request time.
func (r *Record) UserObject() any { return r.userObj }

// Err returns the processing error, or nil. A timeout is not an error
// value; it is signaled by Response and Err both being nil.
func (r *Record) Err() error { return r.err }

// Elapsed is the round-trip time between submission and resolution.
// 0 means the duration was not measured.
func (r *Record) Elapsed() time.Duration { return r.elapsed }

// ElapsedNanos is Elapsed in nanoseconds.
func (r *Record) ElapsedNanos() int64 { return int64(r.elapsed) }

// Measured reports whether Elapsed holds a real measurement. The dispatch
// layer rounds genuine measurements up to at least 1ns, so 0 always means
// "unknown" rather than "instantaneous".
func (r *Record) Measured() bool { return r.elapsed > 0 }

// OK reports a clean success: a reply arrived and no error was recorded.
func (r *Record) OK() bool { return r.err == nil && r.reply != nil }

// TimedOut reports that no reply arrived and no error was recorded.
func (r *Record) TimedOut() bool { return r.err == nil && r.reply == nil }

// Failed reports that an error was recorded. It is authoritative: a
// record with an error is a failure even if a reply happens to be present.
func (r *Record) Failed() bool { return r.err != nil }
