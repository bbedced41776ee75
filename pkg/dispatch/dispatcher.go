// Package dispatch tracks outstanding requests by id and resolves each
// one exactly once: with a matched reply, a timeout after retransmits are
// exhausted, or a transmit failure. Every resolution mints one
// outcome.Record through the injected factory.
package dispatch

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"nmpoll/pkg/outcome"
	"nmpoll/pkg/protocol"
)

// Callback receives the single outcome of a dispatched request. It is
// invoked synchronously on whichever goroutine resolves the request
// (reader, timer, or the dispatching caller on transmit failure).
type Callback func(*outcome.Record)

// SendFunc transmits one encoded frame.
type SendFunc func(frame []byte) error

// Options tunes a Dispatcher. Zero values fall back to defaults.
type Options struct {
	// Source labels outcomes minted by this dispatcher.
	Source string
	// Factory mints outcome records; outcome.DefaultFactory when nil.
	Factory outcome.Factory
	// Timeout is the per-attempt reply deadline.
	Timeout time.Duration
	// Retries is how many times a frame is retransmitted before the
	// request resolves as timed out.
	Retries int
	Logger  *zap.Logger
}

const defaultTimeout = 5 * time.Second

type pending struct {
	id        uint32
	req       *protocol.PDU
	userObj   any
	frame     []byte
	submitted time.Time
	attempts  int
	timer     *time.Timer
	deliver   Callback
}

// Dispatcher owns the outstanding-request table. Safe for concurrent use.
type Dispatcher struct {
	source  string
	factory outcome.Factory
	timeout time.Duration
	retries int
	log     *zap.Logger
	send    SendFunc

	nextID atomic.Uint32

	mu      sync.Mutex
	table   map[uint32]*pending
	closed  bool
}

// New builds a dispatcher transmitting through send.
func New(send SendFunc, opts Options) *Dispatcher {
	if opts.Factory == nil {
		opts.Factory = outcome.DefaultFactory{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	return &Dispatcher{
		source:  opts.Source,
		factory: opts.Factory,
		timeout: opts.Timeout,
		retries: opts.Retries,
		log:     opts.Logger,
		send:    send,
		table:   make(map[uint32]*pending),
	}
}

// NextID returns a fresh non-zero request id.
func (d *Dispatcher) NextID() uint32 {
	for {
		id := d.nextID.Add(1)
		if id != 0 {
			return id
		}
	}
}

// Dispatch registers req under its RequestID, transmits frame, and arms
// the reply timer. cb is invoked exactly once with the outcome. The
// returned error covers caller mistakes only; transmit failures are
// delivered to cb as an error outcome.
func (d *Dispatcher) Dispatch(req *protocol.PDU, userObj any, frame []byte, cb Callback) error {
	if req == nil {
		return ErrNilRequest
	}
	if cb == nil {
		return ErrNilCallback
	}

	p := &pending{
		id:        req.RequestID,
		req:       req,
		userObj:   userObj,
		frame:     frame,
		submitted: time.Now(),
		deliver:   cb,
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if _, dup := d.table[p.id]; dup {
		d.mu.Unlock()
		return ErrDuplicateID
	}
	d.table[p.id] = p
	d.mu.Unlock()

	if err := d.send(frame); err != nil {
		if p := d.take(p.id); p != nil {
			d.resolve(p, nil, nil, err)
		}
		return nil
	}

	d.arm(p)
	return nil
}

// Complete resolves the pending request matching id with a reply.
// Returns false when no such request is outstanding (late or unsolicited
// reply), in which case nothing is delivered.
func (d *Dispatcher) Complete(id uint32, reply *protocol.PDU, peer net.Addr) bool {
	p := d.take(id)
	if p == nil {
		d.log.Debug("reply without pending request", zap.Uint32("request_id", id))
		return false
	}
	d.resolve(p, reply, peer, nil)
	return true
}

// Fail resolves the pending request matching id with a processing error.
func (d *Dispatcher) Fail(id uint32, err error) bool {
	p := d.take(id)
	if p == nil {
		return false
	}
	d.resolve(p, nil, nil, err)
	return true
}

// PendingCount reports how many requests are outstanding.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.table)
}

// Shutdown rejects new dispatches and resolves every outstanding request
// with err. Idempotent.
func (d *Dispatcher) Shutdown(err error) {
	d.mu.Lock()
	d.closed = true
	drained := make([]*pending, 0, len(d.table))
	for id, p := range d.table {
		if p.timer != nil {
			p.timer.Stop()
		}
		drained = append(drained, p)
		delete(d.table, id)
	}
	d.mu.Unlock()

	for _, p := range drained {
		d.resolve(p, nil, nil, err)
	}
}

// take removes and returns the pending entry for id, stopping its timer.
func (d *Dispatcher) take(id uint32) *pending {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.table[id]
	if !ok {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(d.table, id)
	return p
}

func (d *Dispatcher) arm(p *pending) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, still := d.table[p.id]; !still {
		return // resolved between send and arm
	}
	p.timer = time.AfterFunc(d.timeout, func() { d.onExpiry(p.id) })
}

func (d *Dispatcher) onExpiry(id uint32) {
	d.mu.Lock()
	p, ok := d.table[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	if p.attempts < d.retries {
		p.attempts++
		attempt := p.attempts
		d.mu.Unlock()
		protocol.MarkRetransmit(p.frame)
		d.log.Debug("retransmit",
			zap.Uint32("request_id", id),
			zap.Int("attempt", attempt))
		if err := d.send(p.frame); err != nil {
			if p := d.take(id); p != nil {
				d.resolve(p, nil, nil, err)
			}
			return
		}
		d.arm(p)
		return
	}
	delete(d.table, id)
	d.mu.Unlock()
	d.resolve(p, nil, nil, nil) // both reply and err absent: timeout
}

// resolve mints the single outcome for p and delivers it. Elapsed is
// rounded up to 1ns so a real measurement never collides with the
// "not measured" zero.
func (d *Dispatcher) resolve(p *pending, reply *protocol.PDU, peer net.Addr, err error) {
	elapsed := time.Since(p.submitted)
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}
	rec := d.factory.CreateOutcome(d.source, peer, p.req, reply, p.userObj, elapsed, err)
	p.deliver(rec)
}
