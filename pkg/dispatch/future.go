package dispatch

import (
	"context"
	"sync"

	"nmpoll/pkg/outcome"
)

// Future is a complete-once holder for an outcome.Record. It bridges the
// dispatcher's callback delivery to callers that prefer to block.
type Future struct {
	ch  chan struct{}
	rec *outcome.Record

	once sync.Once
	mu   sync.Mutex
}

// NewFuture allocates an incomplete future.
func NewFuture() *Future {
	return &Future{ch: make(chan struct{})}
}

// Complete resolves the future exactly once; later calls are ignored.
// It satisfies the dispatcher Callback signature.
func (f *Future) Complete(rec *outcome.Record) {
	f.once.Do(func() {
		f.mu.Lock()
		f.rec = rec
		f.mu.Unlock()
		close(f.ch)
	})
}

// Done returns a channel closed when the record is available, for
// select-based waiting.
func (f *Future) Done() <-chan struct{} { return f.ch }

// Wait blocks until the future completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (*outcome.Record, error) {
	select {
	case <-f.ch:
		f.mu.Lock()
		r := f.rec
		f.mu.Unlock()
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll returns the record and true if the future is complete, without blocking.
func (f *Future) Poll() (*outcome.Record, bool) {
	select {
	case <-f.ch:
		f.mu.Lock()
		r := f.rec
		f.mu.Unlock()
		return r, true
	default:
		return nil, false
	}
}

// OnDone runs cb in a new goroutine once the future completes. If it is
// already complete, cb runs immediately in the goroutine.
func (f *Future) OnDone(cb func(*outcome.Record)) {
	go func() {
		<-f.ch
		f.mu.Lock()
		r := f.rec
		f.mu.Unlock()
		cb(r)
	}()
}
