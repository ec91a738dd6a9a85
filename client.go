// Copyright 2012 Apcera Inc. All rights reserved.

// Package mtproto implements the session state machine and RPC dispatcher
// that sits above a framed, encrypted MTProto transport and below a caller
// that issues logical remote-procedure calls. It assigns strictly
// monotonic message ids and parity-correct sequence numbers, multiplexes
// many in-flight requests over a single connection, transparently recovers
// from bad_server_salt and bad_msg_notification notifications, maintains
// connection liveness via a ping/pong watchdog, and batches acknowledgments
// of received server messages.
//
// The TL serializer, the low-level obfuscated-TCP/AES-IGE transport, and
// the datacenter directory are external collaborators; this package only
// consumes them through the Transport and Structure interfaces.
package mtproto

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

const (
	// writeTimeout bounds how long a transport write may take to flush,
	// for RPC calls, pings, and ack flushes alike.
	writeTimeout = 120 * time.Second

	// responseTimeout bounds how long an RPCCall may wait for its
	// rpc_result.
	responseTimeout = 600 * time.Second

	// pingInterval is both the steady-state time between pings and the
	// per-probe disconnect timer.
	pingInterval = 10 * time.Second

	// maxSeqnoIncrement clamps the bad_msg_notification (error 32)
	// recovery's doubling seqno_increment.
	maxSeqnoIncrement = int32(math.MaxInt32)
)

// Client is the session façade: it owns the current session (if any), the
// transport factory, and exposes RPCCall/Disconnect. It coordinates the
// sequence allocator, pending registry, ack batcher, ping watchdog, and
// recovery policy that live in the rest of this package.
type Client struct {
	dc      Datacenter
	authKey AuthKey

	logger           *slog.Logger
	clock            clockwork.Clock
	metrics          *Metrics
	transportFactory TransportFactory
	reconnectBackOff backoff.BackOff

	mu         sync.Mutex
	sess       *session
	nextDialAt time.Time
	connecting chan struct{}
}

// New constructs a Client for the given datacenter and auth key. The
// transport factory (WithTransportFactory) is mandatory: the core never
// constructs a Transport itself, since obfuscated framing, key exchange,
// and encryption are handled entirely below this package.
func New(dc Datacenter, authKey AuthKey, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("mtproto: %w", err)
		}
	}
	if o.transportFactory == nil {
		return nil, fmt.Errorf("mtproto: %w: transport factory is required", ErrInvalidOption)
	}

	return &Client{
		dc:               dc,
		authKey:          authKey,
		logger:           o.logger,
		clock:            o.clock,
		metrics:          o.metrics,
		transportFactory: o.transportFactory,
		reconnectBackOff: o.backoffFactory(),
	}, nil
}

// RPCCall sends message (which must contain a string "_cons" constructor
// tag) and blocks until the matching rpc_result arrives, the write or
// response deadline elapses, or ctx is cancelled. It lazily (re)starts the
// transport read loop and ping watchdog if the session is Idle.
func (c *Client) RPCCall(ctx context.Context, message map[string]any) (result map[string]any, err error) {
	cons, ok := message["_cons"].(string)
	if !ok || cons == "" {
		return nil, ErrMissingConstructor
	}
	defer func() { c.metrics.observeRPCCall(cons, err) }()

	sess, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.flushAcks(ctx, sess); err != nil {
		c.logger.Warn("ack flush before rpc_call failed", "error", err)
	}

	req := newPendingRequest(message)

	sess.mu.Lock()
	seqno := sess.seq.nextOdd()
	sess.mu.Unlock()

	msgID, writeComplete := sess.transport.Write(ctx, seqno, message)
	c.logger.Debug("sending message", "constructor", cons, "msg_id", msgID)

	sess.mu.Lock()
	sess.pending.insert(msgID, req)
	c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
	sess.mu.Unlock()

	if err := awaitWrite(ctx, c.clock, writeComplete, writeTimeout); err != nil {
		sess.mu.Lock()
		sess.pending.remove(msgID)
		c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
		sess.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-req.response:
		return res.result, res.err
	case <-ctx.Done():
		sess.mu.Lock()
		sess.pending.remove(msgID)
		c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
		sess.mu.Unlock()
		return nil, ctx.Err()
	case <-c.clock.After(responseTimeout):
		sess.mu.Lock()
		sess.pending.remove(msgID)
		c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
		sess.mu.Unlock()
		return nil, ErrResponseTimeout
	}
}

// ensureConnected returns the current session, lazily dialing and starting
// the read loop and ping watchdog if the session is Idle (no session, or
// the previous one was torn down). A failed dial is throttled by
// reconnectBackOff so that a caller retrying in a hot loop after a
// connection refusal does not hammer the datacenter.
//
// Only one goroutine ever dials at a time: the first caller to find the
// session Idle marks c.connecting and dials on its own behalf; any other
// caller arriving while that dial is in flight waits on the same
// connecting channel instead of starting a second transport, then
// re-checks c.sess once it closes. Without this gate, two callers racing
// in from Idle would each dial their own transport and spin up their own
// readLoop/ping watchdog, and only the session written last would remain
// reachable through c.sess, leaking the other's goroutines and transport.
func (c *Client) ensureConnected(ctx context.Context) (*session, error) {
	for {
		c.mu.Lock()
		if c.sess != nil {
			s := c.sess
			c.mu.Unlock()
			return s, nil
		}
		if c.connecting != nil {
			done := c.connecting
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-done:
			}
			continue
		}
		waitUntil := c.nextDialAt
		c.connecting = make(chan struct{})
		c.mu.Unlock()

		sess, err := c.dial(ctx, waitUntil)

		c.mu.Lock()
		if err == nil {
			c.sess = sess
		}
		close(c.connecting)
		c.connecting = nil
		c.mu.Unlock()

		return sess, err
	}
}

// dial waits out any throttle set by a previous failed attempt, opens a
// new transport, and starts the session's read loop and ping watchdog.
// Called with no lock held; the caller is responsible for serializing
// concurrent dials via c.connecting.
func (c *Client) dial(ctx context.Context, waitUntil time.Time) (*session, error) {
	if now := c.clock.Now(); now.Before(waitUntil) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(waitUntil.Sub(now)):
		}
	}

	transport, err := c.transportFactory(c.dc, c.authKey)
	if err != nil {
		c.mu.Lock()
		c.nextDialAt = c.clock.Now().Add(c.reconnectBackOff.NextBackOff())
		c.mu.Unlock()
		return nil, fmt.Errorf("mtproto: connect to %s: %w", c.dc.Address, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sess := newSession(transport, c.clock, cancel)

	c.mu.Lock()
	c.reconnectBackOff.Reset()
	c.mu.Unlock()

	c.metrics.incReconnects()
	c.logger.Info("connected", "address", c.dc.Address, "port", c.dc.Port)

	go c.readLoop(loopCtx, sess)

	if err := c.sendPing(loopCtx, sess); err != nil {
		c.logger.Warn("initial ping failed", "error", err)
	}
	c.scheduleNextPing(loopCtx, sess)

	return sess, nil
}

// readLoop pulls decrypted messages from sess.transport until it errors or
// ctx is cancelled, feeding each one to the inbound dispatcher
// synchronously so a message's effects are fully applied before the next
// one is read.
func (c *Client) readLoop(ctx context.Context, sess *session) {
	for {
		msg, err := sess.transport.Read(ctx)
		if err != nil {
			c.handleFatalReadError(sess, err)
			return
		}
		c.logger.Debug("received message", "msg_id", msg.MsgID)
		c.dispatch(ctx, sess, msg)
	}
}

// handleFatalReadError tears down sess (Connected -> Idle) after a fatal
// transport read error, then clears it from Client if it is still the
// active session (a newer one may already have superseded it, e.g.
// Disconnect followed by a fresh RPCCall racing ahead of this goroutine
// noticing ctx cancellation).
func (c *Client) handleFatalReadError(sess *session, err error) {
	c.logger.Error("read loop failed", "error", err)
	sess.teardown(c.logger)

	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
}

// Disconnect cancels the read-loop goroutine, stops the transport, cancels
// all pending ping timers, and fulfils all pending RPC responses with
// ErrInterrupted. Idempotent: a second call is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}
	sess.teardown(c.logger)
}
