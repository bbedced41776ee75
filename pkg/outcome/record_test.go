package outcome

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nmpoll/pkg/protocol"
)

func TestNewRecordSuccess(t *testing.T) {
	req := protocol.NewGet("sys.descr")
	req.RequestID = 1
	reply := protocol.NewReport(1, protocol.Binding{Name: "sys.descr", Value: "router"})
	peer := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 7161}

	rec := NewRecord("client-1", peer, req, reply, "ctx-1", 1500*time.Microsecond, nil)

	assert.Same(t, req, rec.Request())
	assert.Same(t, reply, rec.Response())
	assert.Equal(t, peer, rec.PeerAddr())
	assert.Equal(t, "ctx-1", rec.UserObject())
	assert.NoError(t, rec.Err())
	assert.Equal(t, int64(1_500_000), rec.ElapsedNanos())
	assert.True(t, rec.Measured())
	assert.True(t, rec.OK())
	assert.False(t, rec.TimedOut())
	assert.False(t, rec.Failed())
}

func TestNewRecordTimeout(t *testing.T) {
	req := protocol.NewGet("sys.uptime")
	req.RequestID = 2

	rec := NewRecord("client-1", nil, req, nil, "ctx-2", 5*time.Second, nil)

	assert.Nil(t, rec.Response())
	assert.Nil(t, rec.PeerAddr())
	assert.NoError(t, rec.Err())
	assert.False(t, rec.OK())
	assert.True(t, rec.TimedOut())
	assert.False(t, rec.Failed())
	assert.Equal(t, int64(5_000_000_000), rec.ElapsedNanos())
}

func TestNewRecordTimeoutDropsPeer(t *testing.T) {
	// No reply means no attributable remote party, even if the dispatch
	// layer passed one along.
	req := protocol.NewGet("sys.uptime")
	peer := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 7161}

	rec := NewRecord("client-1", peer, req, nil, nil, 0, nil)

	assert.True(t, rec.TimedOut())
	assert.Nil(t, rec.PeerAddr())
}

func TestNewRecordProcessingError(t *testing.T) {
	req := protocol.NewGet("sys.bad")
	encErr := errors.New("encode request 3: bad variable name")

	rec := NewRecord("client-1", nil, req, nil, nil, 0, encErr)

	assert.Nil(t, rec.Response())
	assert.ErrorIs(t, rec.Err(), encErr)
	assert.False(t, rec.OK())
	assert.False(t, rec.TimedOut())
	assert.True(t, rec.Failed())
	assert.False(t, rec.Measured())
	assert.Zero(t, rec.ElapsedNanos())
}

func TestNewRecordErrorOverridesReply(t *testing.T) {
	// A reply that arrived but failed post-processing: response present,
	// error present, and the record is still a failure.
	req := protocol.NewGet("sys.descr")
	req.RequestID = 4
	reply := protocol.NewReport(4)
	peer := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 7161}
	procErr := errors.New("reply rejected")

	rec := NewRecord("client-1", peer, req, reply, nil, time.Millisecond, procErr)

	assert.Same(t, reply, rec.Response())
	assert.Equal(t, peer, rec.PeerAddr())
	assert.True(t, rec.Failed())
	assert.False(t, rec.OK())
	assert.False(t, rec.TimedOut())
}

func TestNewRecordNilRequestPanics(t *testing.T) {
	require.Panics(t, func() {
		NewRecord("client-1", nil, nil, nil, nil, 0, nil)
	})
}

func TestNewRecordNegativeElapsedClamps(t *testing.T) {
	rec := NewRecord("client-1", nil, protocol.NewGet("x"), nil, nil, -time.Second, nil)
	assert.Zero(t, rec.Elapsed())
	assert.False(t, rec.Measured())
}

func TestUserObjectIdentity(t *testing.T) {
	type marker struct{ n int }
	obj := &marker{n: 7}
	rec := NewRecord("client-1", nil, protocol.NewGet("x"), nil, obj, 0, nil)
	require.Same(t, obj, rec.UserObject())
}
