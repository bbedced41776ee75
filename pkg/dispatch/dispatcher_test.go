package dispatch

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"nmpoll/pkg/outcome"
	"nmpoll/pkg/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// frameSink records transmitted frames and optionally fails.
type frameSink struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *frameSink) send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *frameSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newTestDispatcher(sink *frameSink, timeout time.Duration, retries int) *Dispatcher {
	return New(sink.send, Options{
		Source:  "test",
		Timeout: timeout,
		Retries: retries,
		Logger:  zap.NewNop(),
	})
}

func dispatchOne(t *testing.T, d *Dispatcher, req *protocol.PDU) chan *outcome.Record {
	t.Helper()
	ch := make(chan *outcome.Record, 1)
	err := d.Dispatch(req, "user-ctx", mustFrame(t, req), func(rec *outcome.Record) { ch <- rec })
	require.NoError(t, err)
	return ch
}

func mustFrame(t *testing.T, req *protocol.PDU) []byte {
	t.Helper()
	env := protocol.Envelope{Header: protocol.Header{Version: 1, Type: req.Type, RequestID: req.RequestID}}
	frame, err := env.EncodeFrame()
	require.NoError(t, err)
	return frame
}

func TestDispatchComplete(t *testing.T) {
	sink := &frameSink{}
	d := newTestDispatcher(sink, time.Second, 0)
	defer d.Shutdown(ErrClosed)

	req := protocol.NewGet("sys.descr")
	req.RequestID = d.NextID()
	ch := dispatchOne(t, d, req)

	peer := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 7161}
	reply := protocol.NewReport(req.RequestID, protocol.Binding{Name: "sys.descr", Value: "sw"})
	require.True(t, d.Complete(req.RequestID, reply, peer))

	rec := <-ch
	assert.True(t, rec.OK())
	assert.Same(t, req, rec.Request())
	assert.Same(t, reply, rec.Response())
	assert.Equal(t, peer, rec.PeerAddr())
	assert.Equal(t, "user-ctx", rec.UserObject())
	assert.Equal(t, "test", rec.Source())
	assert.True(t, rec.Measured())
	assert.Equal(t, 0, d.PendingCount())
	assert.Equal(t, 1, sink.count())
}

func TestDispatchExactlyOnce(t *testing.T) {
	sink := &frameSink{}
	d := newTestDispatcher(sink, time.Second, 0)
	defer d.Shutdown(ErrClosed)

	req := protocol.NewGet("sys.descr")
	req.RequestID = d.NextID()
	ch := dispatchOne(t, d, req)

	require.True(t, d.Complete(req.RequestID, protocol.NewReport(req.RequestID), nil))
	assert.False(t, d.Complete(req.RequestID, protocol.NewReport(req.RequestID), nil))
	assert.False(t, d.Fail(req.RequestID, errors.New("late")))

	rec := <-ch
	assert.True(t, rec.OK())
	select {
	case extra := <-ch:
		t.Fatalf("second delivery: %#v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchTimeoutAfterRetries(t *testing.T) {
	sink := &frameSink{}
	d := newTestDispatcher(sink, 20*time.Millisecond, 2)
	defer d.Shutdown(ErrClosed)

	req := protocol.NewGet("sys.uptime")
	req.RequestID = d.NextID()
	ch := dispatchOne(t, d, req)

	var rec *outcome.Record
	select {
	case rec = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no timeout outcome")
	}

	assert.True(t, rec.TimedOut())
	assert.Nil(t, rec.Response())
	assert.Nil(t, rec.PeerAddr())
	assert.NoError(t, rec.Err())
	assert.True(t, rec.Measured())
	// initial transmission plus two retransmits
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 0, d.PendingCount())

	// retransmitted frames carry the flag
	var env protocol.Envelope
	require.NoError(t, env.DecodeFrame(sink.frames[2]))
	assert.True(t, env.HasFlag(protocol.FlagRetransmit))
}

func TestDispatchTransmitFailure(t *testing.T) {
	sendErr := errors.New("wire down")
	sink := &frameSink{err: sendErr}
	d := newTestDispatcher(sink, time.Second, 0)
	defer d.Shutdown(ErrClosed)

	req := protocol.NewGet("sys.descr")
	req.RequestID = d.NextID()
	ch := dispatchOne(t, d, req)

	rec := <-ch
	assert.True(t, rec.Failed())
	assert.ErrorIs(t, rec.Err(), sendErr)
	assert.Nil(t, rec.Response())
	assert.Equal(t, 0, d.PendingCount())
}

func TestDispatchFail(t *testing.T) {
	sink := &frameSink{}
	d := newTestDispatcher(sink, time.Second, 0)
	defer d.Shutdown(ErrClosed)

	req := protocol.NewGet("sys.descr")
	req.RequestID = d.NextID()
	ch := dispatchOne(t, d, req)

	decodeErr := errors.New("bad reply payload")
	require.True(t, d.Fail(req.RequestID, decodeErr))

	rec := <-ch
	assert.True(t, rec.Failed())
	assert.ErrorIs(t, rec.Err(), decodeErr)
	assert.Nil(t, rec.PeerAddr())
}

func TestDispatchValidation(t *testing.T) {
	sink := &frameSink{}
	d := newTestDispatcher(sink, time.Second, 0)
	defer d.Shutdown(ErrClosed)

	assert.ErrorIs(t, d.Dispatch(nil, nil, nil, func(*outcome.Record) {}), ErrNilRequest)

	req := protocol.NewGet("x")
	req.RequestID = d.NextID()
	assert.ErrorIs(t, d.Dispatch(req, nil, mustFrame(t, req), nil), ErrNilCallback)

	ch := dispatchOne(t, d, req)
	dup := protocol.NewGet("y")
	dup.RequestID = req.RequestID
	assert.ErrorIs(t, d.Dispatch(dup, nil, mustFrame(t, dup), func(*outcome.Record) {}), ErrDuplicateID)

	d.Complete(req.RequestID, protocol.NewReport(req.RequestID), nil)
	<-ch
}

func TestShutdownResolvesPending(t *testing.T) {
	sink := &frameSink{}
	d := newTestDispatcher(sink, time.Minute, 0)

	req := protocol.NewGet("sys.descr")
	req.RequestID = d.NextID()
	ch := dispatchOne(t, d, req)

	closed := errors.New("session lost")
	d.Shutdown(closed)

	rec := <-ch
	assert.True(t, rec.Failed())
	assert.ErrorIs(t, rec.Err(), closed)

	// no dispatches after shutdown
	late := protocol.NewGet("z")
	late.RequestID = d.NextID()
	assert.ErrorIs(t, d.Dispatch(late, nil, mustFrame(t, late), func(*outcome.Record) {}), ErrClosed)
}

func TestNextIDSkipsZero(t *testing.T) {
	sink := &frameSink{}
	d := newTestDispatcher(sink, time.Second, 0)
	defer d.Shutdown(ErrClosed)
	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		id := d.NextID()
		require.NotZero(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}
