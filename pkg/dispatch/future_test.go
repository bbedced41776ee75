package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nmpoll/pkg/outcome"
	"nmpoll/pkg/protocol"
)

func testRecord() *outcome.Record {
	return outcome.NewRecord("t", nil, protocol.NewGet("x"), nil, nil, 0, nil)
}

func TestFutureWait(t *testing.T) {
	fut := NewFuture()
	rec := testRecord()
	go fut.Complete(rec)

	got, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, rec, got)
}

func TestFutureCompleteOnce(t *testing.T) {
	fut := NewFuture()
	first := testRecord()
	second := testRecord()
	fut.Complete(first)
	fut.Complete(second)

	got, ok := fut.Poll()
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestFutureWaitContextCancel(t *testing.T) {
	fut := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := fut.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := fut.Poll()
	assert.False(t, ok)
}

func TestFutureOnDone(t *testing.T) {
	fut := NewFuture()
	rec := testRecord()
	done := make(chan *outcome.Record, 1)
	fut.OnDone(func(r *outcome.Record) { done <- r })

	fut.Complete(rec)
	select {
	case got := <-done:
		assert.Same(t, rec, got)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}
