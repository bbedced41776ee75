// Package transport abstracts the links a management client can speak
// over. A Session carries opaque frames to exactly one peer; matching
// replies to requests happens above this layer.
package transport

import (
	"context"
	"net"
)

// Kind identifies the link type.
type Kind int

const (
	KindUnknown Kind = iota
	KindUDP
	KindQUIC
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindUDP:
		return "udp"
	case KindQUIC:
		return "quic"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// PeerInfo bundles peer identity and addressing hints.
type PeerInfo struct {
	ID   string
	Addr string
}

// Stream is a bidirectional frame stream. Exactly one reader and one
// writer goroutine are expected.
type Stream interface {
	// SendBytes sends one message frame as opaque bytes.
	SendBytes([]byte) error
	// RecvBytes receives the next message frame and returns its bytes.
	RecvBytes() ([]byte, error)
	Close() error
}

// Session is a connection to a single peer.
type Session interface {
	Peer() PeerInfo
	TransportKind() Kind
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Open returns the session's frame stream.
	Open(ctx context.Context) (Stream, error)

	Close() error
}

// Listener accepts inbound sessions (the agent side; the client side of
// the library only uses it in tests).
type Listener interface {
	Accept(ctx context.Context) (Session, error)
	Addr() net.Addr
	Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
	Kind() Kind
	Listen(ctx context.Context, address string) (Listener, error)
	Dial(ctx context.Context, address string, peer PeerInfo) (Session, error)
}
