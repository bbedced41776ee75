// Package udp implements a datagram transport carrying one envelope per
// packet, the native link for management agents.
package udp

import (
	"context"
	"errors"
	"net"
	"sync"

	"nmpoll/pkg/transport"
)

// Transport implements single-frame-per-datagram exchanges. There is one
// logical stream per session.
type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindUDP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	laddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil { return nil, err }
	c, err := net.ListenUDP("udp", laddr)
	if err != nil { return nil, err }
	l := &listener{
		conn:     c,
		sessions: make(map[string]*session),
		newCh:    make(chan *session, 8),
		closeCh:  make(chan struct{}),
	}
	go l.readLoop()
	go func() { <-ctx.Done(); _ = l.Close() }()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil { return nil, err }
	c, err := net.DialUDP("udp", nil, raddr)
	if err != nil { return nil, err }
	s := &session{
		peer:     peer,
		conn:     c,
		raddr:    raddr,
		outbound: true,
		rxCh:     make(chan []byte, 16),
		closeCh:  make(chan struct{}),
	}
	go s.recvLoop()
	go func() { <-ctx.Done(); _ = s.Close() }()
	return s, nil
}

// ---- Listener/demux ----

type listener struct {
	conn     *net.UDPConn
	mu       sync.Mutex
	sessions map[string]*session
	newCh    chan *session
	closeCh  chan struct{}
}

func (l *listener) Addr() net.Addr { return l.conn.LocalAddr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("udp listener closed")
	case s := <-l.newCh:
		return s, nil
	}
}

func (l *listener) Close() error {
	select {
	case <-l.closeCh:
		// already closed
	default:
		close(l.closeCh)
	}
	return l.conn.Close()
}

// readLoop demultiplexes inbound datagrams into per-remote sessions.
func (l *listener) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, raddr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		key := raddr.String()
		l.mu.Lock()
		s, ok := l.sessions[key]
		if !ok {
			s = &session{
				peer:    transport.PeerInfo{ID: "udp:" + key, Addr: key},
				conn:    l.conn,
				raddr:   raddr,
				rxCh:    make(chan []byte, 32),
				closeCh: make(chan struct{}),
			}
			l.sessions[key] = s
			select { case l.newCh <- s: default: }
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		// forward into the per-remote queue (drop if full)
		select { case s.rxCh <- pkt: default: }
		l.mu.Unlock()
	}
}

// ---- Session/Stream ----

type session struct {
	peer      transport.PeerInfo
	conn      *net.UDPConn
	raddr     *net.UDPAddr
	outbound  bool
	rxCh      chan []byte
	closeOnce sync.Once
	closeCh   chan struct{}
}

func (s *session) Peer() transport.PeerInfo        { return s.peer }
func (s *session) TransportKind() transport.Kind   { return transport.KindUDP }
func (s *session) LocalAddr() net.Addr             { return s.conn.LocalAddr() }
func (s *session) RemoteAddr() net.Addr            { return s.raddr }

func (s *session) Open(_ context.Context) (transport.Stream, error) {
	return &stream{s: s}, nil
}

// recvLoop feeds the connected (dialed) socket into rxCh.
func (s *session) recvLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			return
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		select { case s.rxCh <- pkt: default: }
	}
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		if s.outbound {
			err = s.conn.Close()
		}
	})
	return err
}

type stream struct{ s *session }

func (st *stream) SendBytes(b []byte) error {
	var err error
	if st.s.outbound {
		_, err = st.s.conn.Write(b)
	} else {
		_, err = st.s.conn.WriteToUDP(b, st.s.raddr)
	}
	return err
}

func (st *stream) RecvBytes() ([]byte, error) {
	select {
	case pkt := <-st.s.rxCh:
		return pkt, nil
	case <-st.s.closeCh:
		return nil, errors.New("udp stream closed")
	}
}

func (st *stream) Close() error { return nil }
