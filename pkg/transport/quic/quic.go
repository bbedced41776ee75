// Package quic carries envelopes over a QUIC bidirectional stream with
// length-prefixed frames, for agents reachable only through stream links.
package quic

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"io"
	"math/big"
	"net"
	"reflect"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"nmpoll/pkg/transport"
)

const alpn = "nmpoll"

// Transport dials and listens QUIC sessions carrying a single control stream.
type Transport struct {
	tlsConf  *tls.Config
	quicConf *quicgo.Config
}

func New() *Transport {
	// Ephemeral self-signed certificate for the listener side.
	cert, _ := selfSignedCert()
	return &Transport{
		tlsConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{alpn},
			MinVersion:   tls.VersionTLS13,
		},
		quicConf: &quicgo.Config{},
	}
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
	if err != nil { return nil, err }
	addr := l.Addr()
	ql := &listener{l: any(l), laddr: addr, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
	go ql.acceptLoop(ctx)
	go func() { <-ctx.Done(); _ = ql.Close() }()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string, peer transport.PeerInfo) (transport.Session, error) {
	// Certificate verification is skipped; the management protocol does
	// its own attribution of replies and this layer reports, not enforces.
	tlsClient := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
	if err != nil { return nil, err }
	s := &session{peer: peer, c: any(c)}
	go func() { <-ctx.Done(); _ = s.Close() }()
	return s, nil
}

// ---- Listener ----

type listener struct {
	l       any
	laddr   net.Addr
	newCh   chan *session
	closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return l.laddr }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("quic listener closed")
	case s := <-l.newCh:
		return s, nil
	}
}

func (l *listener) Close() error {
	select { case <-l.closeCh: default: close(l.closeCh) }
	if v, ok := l.l.(interface{ Close() error }); ok { return v.Close() }
	return nil
}

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		// Reflective call keeps this working across quic-go connection type renames.
		mv := reflect.ValueOf(l.l).MethodByName("Accept")
		if !mv.IsValid() { return }
		outs := mv.Call([]reflect.Value{reflect.ValueOf(ctx)})
		if len(outs) != 2 { return }
		if !outs[1].IsNil() { return }
		anyConn := outs[0].Interface()
		var raddr net.Addr
		if rm := reflect.ValueOf(anyConn).MethodByName("RemoteAddr"); rm.IsValid() {
			rv := rm.Call(nil)
			if len(rv) == 1 && !rv[0].IsNil() {
				if a, ok := rv[0].Interface().(net.Addr); ok { raddr = a }
			}
		}
		s := &session{
			peer:    transport.PeerInfo{ID: "quic:" + addrString(raddr), Addr: addrString(raddr)},
			c:       anyConn,
			inbound: true,
		}
		select { case l.newCh <- s: default: _ = s.Close() }
	}
}

func addrString(a net.Addr) string {
	if a == nil { return "" }
	return a.String()
}

// ---- Session/Stream ----

type session struct {
	peer    transport.PeerInfo
	c       any
	inbound bool

	mu   sync.Mutex
	ctrl *stream
}

func (s *session) Peer() transport.PeerInfo      { return s.peer }
func (s *session) TransportKind() transport.Kind { return transport.KindQUIC }

func (s *session) LocalAddr() net.Addr {
	if v, ok := s.c.(interface{ LocalAddr() net.Addr }); ok { return v.LocalAddr() }
	return nil
}

func (s *session) RemoteAddr() net.Addr {
	if v, ok := s.c.(interface{ RemoteAddr() net.Addr }); ok { return v.RemoteAddr() }
	return nil
}

func (s *session) Open(ctx context.Context) (transport.Stream, error) {
	s.mu.Lock()
	if s.ctrl != nil {
		st := s.ctrl
		s.mu.Unlock()
		return st, nil
	}
	s.mu.Unlock()

	// The dialer opens the control stream; the listener accepts it.
	var mv reflect.Value
	if s.inbound {
		mv = reflect.ValueOf(s.c).MethodByName("AcceptStream")
	} else {
		mv = reflect.ValueOf(s.c).MethodByName("OpenStreamSync")
		if !mv.IsValid() { mv = reflect.ValueOf(s.c).MethodByName("OpenStream") }
	}
	if !mv.IsValid() { return nil, errors.New("quic: stream open method not found") }
	outs := mv.Call([]reflect.Value{reflect.ValueOf(ctx)})
	if len(outs) != 2 { return nil, errors.New("quic: unexpected stream open signature") }
	if !outs[1].IsNil() {
		return nil, outs[1].Interface().(error)
	}
	st, err := wrapStream(outs[0].Interface())
	if err != nil { return nil, err }
	s.mu.Lock(); s.ctrl = st; s.mu.Unlock()
	return st, nil
}

func (s *session) Close() error {
	if v, ok := s.c.(interface{ CloseWithError(code uint64, msg string) error }); ok {
		return v.CloseWithError(0, "")
	}
	if v, ok := s.c.(interface{ Close() error }); ok {
		return v.Close()
	}
	return nil
}

// stream implements transport.Stream over a QUIC bidirectional stream
// with u32 LE framing.
type stream struct {
	mu     sync.Mutex
	closef func() error
	br     *bufio.Reader
	bw     *bufio.Writer
}

func (st *stream) SendBytes(b []byte) error {
	st.mu.Lock(); defer st.mu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := st.bw.Write(lenbuf[:]); err != nil { return err }
	if _, err := st.bw.Write(b); err != nil { return err }
	return st.bw.Flush()
}

func (st *stream) RecvBytes() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(st.br, lenbuf[:]); err != nil { return nil, err }
	n := int(binary.LittleEndian.Uint32(lenbuf[:]))
	if n < 0 || n > (1<<24) { return nil, errors.New("invalid frame size") }
	buf := make([]byte, n)
	if _, err := io.ReadFull(st.br, buf); err != nil { return nil, err }
	return buf, nil
}

func (st *stream) Close() error { if st.closef != nil { return st.closef() }; return nil }

// wrapStream normalizes a quic-go stream value to our framing stream.
func wrapStream(qs any) (*stream, error) {
	rw, ok := qs.(interface{ io.Reader; io.Writer; Close() error })
	if !ok {
		return nil, errors.New("quic: stream does not expose io.Reader/Writer")
	}
	return &stream{closef: rw.Close, br: bufio.NewReader(rw), bw: bufio.NewWriter(rw)}, nil
}

// selfSignedCert generates a short-lived self-signed TLS certificate for
// local listener use.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil { return tls.Certificate{}, err }
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil { return tls.Certificate{}, err }
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
