// Package client issues management requests over a transport session and
// delivers each one's outcome exactly once, synchronously or through a
// callback.
package client

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"nmpoll/pkg/dispatch"
	"nmpoll/pkg/outcome"
	"nmpoll/pkg/protocol"
	"nmpoll/pkg/protocol/codec"
	"nmpoll/pkg/transport"
	"nmpoll/pkg/transport/mem"
	"nmpoll/pkg/transport/quic"
	"nmpoll/pkg/transport/udp"
)

// ErrClosed is delivered inside the outcome of requests still pending
// when the client shuts down.
var ErrClosed = errors.New("client: closed")

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	// Source labels outcomes from this client; a random uuid when empty.
	Source string
	// ContentType selects the request codec; application/cbor by default.
	ContentType string
	// Timeout per attempt; Retries extra transmissions before timeout.
	Timeout time.Duration
	Retries int
	// Factory mints outcome records; outcome.DefaultFactory when nil.
	// Wrap it (see observability) to attach logging or metrics.
	Factory outcome.Factory
	// Codecs defaults to the full built-in registry.
	Codecs *codec.Registry
	Logger *zap.Logger
}

// Client is an asynchronous management client bound to one peer session.
type Client struct {
	source  string
	srcID   uint64
	log     *zap.Logger
	sess    transport.Session
	st      transport.Stream
	cdc     codec.Codec
	codecs  *codec.Registry
	factory outcome.Factory
	disp    *dispatch.Dispatcher

	closeOnce sync.Once
	done      chan struct{}
}

// ByKind returns the transport for a config kind string.
func ByKind(kind string) (transport.Transport, error) {
	switch kind {
	case "udp":
		return udp.New(), nil
	case "quic":
		return quic.New(), nil
	case "mem":
		return mem.New(), nil
	default:
		return nil, fmt.Errorf("unknown transport kind: %q", kind)
	}
}

// Dial connects to the agent at address and starts the reply reader.
func Dial(ctx context.Context, tr transport.Transport, address string, opts Options) (*Client, error) {
	if opts.Source == "" {
		opts.Source = uuid.NewString()
	}
	if opts.ContentType == "" {
		opts.ContentType = protocol.ContentCBOR
	}
	if opts.Factory == nil {
		opts.Factory = outcome.DefaultFactory{}
	}
	if opts.Codecs == nil {
		opts.Codecs = codec.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	cdc := opts.Codecs.Get(opts.ContentType)
	if cdc == nil {
		return nil, fmt.Errorf("no codec for %q", opts.ContentType)
	}

	sess, err := tr.Dial(ctx, address, transport.PeerInfo{ID: "agent:" + address, Addr: address})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	st, err := sess.Open(ctx)
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	c := &Client{
		source:  opts.Source,
		srcID:   hashSource(opts.Source),
		log:     opts.Logger,
		sess:    sess,
		st:      st,
		cdc:     cdc,
		codecs:  opts.Codecs,
		factory: opts.Factory,
		done:    make(chan struct{}),
	}
	c.disp = dispatch.New(st.SendBytes, dispatch.Options{
		Source:  opts.Source,
		Factory: opts.Factory,
		Timeout: opts.Timeout,
		Retries: opts.Retries,
		Logger:  opts.Logger,
	})
	go c.readLoop()
	return c, nil
}

// Source returns the identity stamped on this client's outcomes.
func (c *Client) Source() string { return c.source }

// Send issues req and blocks until its outcome or ctx expiry. On ctx
// expiry the pending request is cancelled and the returned record carries
// the context error.
func (c *Client) Send(ctx context.Context, req *protocol.PDU, userObj any) (*outcome.Record, error) {
	fut := dispatch.NewFuture()
	if err := c.SendAsync(req, userObj, fut.Complete); err != nil {
		return nil, err
	}
	rec, err := fut.Wait(ctx)
	if err != nil {
		c.disp.Fail(req.RequestID, err)
		// Fail either resolved it or another path already had; the
		// future is complete now.
		rec, _ = fut.Wait(context.Background())
	}
	return rec, nil
}

// SendAsync issues req and invokes cb exactly once with the outcome.
// The returned error covers caller mistakes only (nil req/cb, closed
// client); encoding and transmit failures arrive as error outcomes.
func (c *Client) SendAsync(req *protocol.PDU, userObj any, cb dispatch.Callback) error {
	if req == nil {
		return dispatch.ErrNilRequest
	}
	if cb == nil {
		return dispatch.ErrNilCallback
	}
	if req.RequestID == 0 {
		req.RequestID = c.disp.NextID()
	}
	frame, err := c.encode(req)
	if err != nil {
		// Encoding failures are data: unmeasured error outcome.
		cb(c.factory.CreateOutcome(c.source, nil, req, nil, userObj, 0, err))
		return nil
	}
	return c.disp.Dispatch(req, userObj, frame, cb)
}

// Get reads the named variables.
func (c *Client) Get(ctx context.Context, names ...string) (*outcome.Record, error) {
	return c.Send(ctx, protocol.NewGet(names...), nil)
}

// GetNext reads the successors of the named variables.
func (c *Client) GetNext(ctx context.Context, names ...string) (*outcome.Record, error) {
	return c.Send(ctx, protocol.NewGetNext(names...), nil)
}

// Set writes the given bindings.
func (c *Client) Set(ctx context.Context, bindings ...protocol.Binding) (*outcome.Record, error) {
	return c.Send(ctx, protocol.NewSet(bindings...), nil)
}

// Close shuts the session down; requests still pending resolve with
// ErrClosed outcomes.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.disp.Shutdown(ErrClosed)
		_ = c.st.Close()
		err = c.sess.Close()
	})
	return err
}

func (c *Client) readLoop() {
	for {
		buf, err := c.st.RecvBytes()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.log.Warn("recv", zap.Error(err))
			c.disp.Shutdown(fmt.Errorf("session lost: %w", err))
			return
		}
		var env protocol.Envelope
		if err := env.DecodeFrame(buf); err != nil {
			c.log.Warn("bad frame", zap.Error(err), zap.Int("len", len(buf)))
			continue
		}
		reply, err := c.decode(&env)
		if err != nil {
			// A reply arrived but could not be interpreted: resolve the
			// request with the decode error, no response attached.
			c.log.Warn("bad reply payload", zap.Uint32("request_id", env.Header.RequestID), zap.Error(err))
			c.disp.Fail(env.Header.RequestID, err)
			continue
		}
		if !c.disp.Complete(env.Header.RequestID, reply, c.sess.RemoteAddr()) {
			c.log.Debug("unsolicited reply", zap.Uint32("request_id", env.Header.RequestID))
		}
	}
}

func (c *Client) encode(req *protocol.PDU) ([]byte, error) {
	var payload []byte
	var err error
	if c.cdc.ContentType() == protocol.ContentProto {
		s, serr := req.ToStruct()
		if serr != nil {
			return nil, fmt.Errorf("encode request %d: %w", req.RequestID, serr)
		}
		payload, err = c.cdc.Marshal(s)
	} else {
		payload, err = c.cdc.Marshal(req)
	}
	if err != nil {
		return nil, fmt.Errorf("encode request %d: %w", req.RequestID, err)
	}
	env := protocol.Envelope{
		Header: protocol.Header{
			Version:     1,
			Type:        req.Type,
			Flags:       protocol.FlagAckRequested,
			ContentCode: protocol.ContentCodeOf(c.cdc.ContentType()),
			RequestID:   req.RequestID,
			Source:      c.srcID,
		},
		Payload: payload,
	}
	return env.EncodeFrame()
}

func (c *Client) decode(env *protocol.Envelope) (*protocol.PDU, error) {
	ct := protocol.ContentTypeOf(env.Header.ContentCode)
	cdc := c.codecs.Get(ct)
	if cdc == nil {
		return nil, fmt.Errorf("no codec for content code %d", env.Header.ContentCode)
	}
	if ct == protocol.ContentProto {
		var s structpb.Struct
		if err := cdc.Unmarshal(env.Payload, &s); err != nil {
			return nil, err
		}
		return protocol.PDUFromStruct(&s)
	}
	var p protocol.PDU
	if err := cdc.Unmarshal(env.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func hashSource(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
