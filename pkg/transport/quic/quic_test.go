package quic

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"nmpoll/pkg/transport"
)

func TestStreamFraming(t *testing.T) {
	c1, c2 := net.Pipe()
	a, err := wrapStream(c1)
	if err != nil {
		t.Fatalf("wrap a: %v", err)
	}
	b, err := wrapStream(c2)
	if err != nil {
		t.Fatalf("wrap b: %v", err)
	}
	defer a.Close()
	defer b.Close()

	payload := bytes.Repeat([]byte{0xab}, 4096)
	errCh := make(chan error, 1)
	go func() { errCh <- a.SendBytes(payload) }()
	got, err := b.RecvBytes()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("frame mismatch: %d bytes", len(got))
	}
	if err := <-errCh; err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestStreamFramingRejectsOversize(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	b, err := wrapStream(c2)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	defer b.Close()

	// Length prefix far beyond the frame cap, no payload behind it.
	go func() { _, _ = c1.Write([]byte{0xff, 0xff, 0xff, 0xff}) }()
	if _, err := b.RecvBytes(); err == nil {
		t.Fatalf("expected oversize frame error")
	}
}

func TestDialListenRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tr := New()
	if tr.Kind() != transport.KindQUIC {
		t.Fatalf("kind = %v", tr.Kind())
	}
	l, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	sess, err := tr.Dial(ctx, l.Addr().String(), transport.PeerInfo{ID: "agent"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sess.Close()
	st, err := sess.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.SendBytes([]byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}

	srvSess, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer srvSess.Close()
	srvSt, err := srvSess.Open(ctx)
	if err != nil {
		t.Fatalf("server open: %v", err)
	}
	got, err := srvSt.RecvBytes()
	if err != nil {
		t.Fatalf("server recv: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("server got %q", got)
	}

	if err := srvSt.SendBytes([]byte("pong")); err != nil {
		t.Fatalf("server send: %v", err)
	}
	got, err = st.RecvBytes()
	if err != nil {
		t.Fatalf("client recv: %v", err)
	}
	if string(got) != "pong" {
		t.Fatalf("client got %q", got)
	}

	// A second session.Open must hand back the same control stream.
	again, err := sess.Open(ctx)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if again != st {
		t.Fatalf("reopen returned a different stream")
	}
}
