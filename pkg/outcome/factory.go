package outcome

import (
	"net"
	"time"

	"nmpoll/pkg/protocol"
)

// Factory mints a Record at the single point where every request
// resolves. Hosts substitute their own implementation to attach
// cross-cutting behavior (logging, metrics) or to return a richer record,
// without touching the dispatch layer.
//
// A Factory must not fail for well-formed inputs (non-nil request), and
// an implementation's side effects must never prevent the record from
// being returned.
type Factory interface {
	CreateOutcome(source string, peer net.Addr, request, reply *protocol.PDU, userObj any, elapsed time.Duration, err error) *Record
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(source string, peer net.Addr, request, reply *protocol.PDU, userObj any, elapsed time.Duration, err error) *Record

func (f FactoryFunc) CreateOutcome(source string, peer net.Addr, request, reply *protocol.PDU, userObj any, elapsed time.Duration, err error) *Record {
	return f(source, peer, request, reply, userObj, elapsed, err)
}

// DefaultFactory constructs records directly. The zero value is ready to use.
type DefaultFactory struct{}

func (DefaultFactory) CreateOutcome(source string, peer net.Addr, request, reply *protocol.PDU, userObj any, elapsed time.Duration, err error) *Record {
	return NewRecord(source, peer, request, reply, userObj, elapsed, err)
}
