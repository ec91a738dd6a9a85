// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
)

// randomPingID returns a uniformly random signed 64-bit integer, matching
// the TL layer's ping_id domain (the original source draws from
// random.randrange(-2**63, 2**63), i.e. the full int64 range).
func randomPingID() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// sendPing writes a ping with a fresh random ping_id, arms a pingInterval
// disconnect timer for it, and registers the outgoing msg_id in the
// pending registry so that the server's pong also resolves through the
// ordinary rpc_result-like path (processPong looks the msg_id up
// directly).
func (c *Client) sendPing(ctx context.Context, sess *session) error {
	pingID, err := randomPingID()
	if err != nil {
		return err
	}

	request := map[string]any{"_cons": "ping", "ping_id": pingID}
	req := newPendingRequest(request)

	sess.mu.Lock()
	seqno := sess.seq.nextOdd()
	sess.mu.Unlock()

	msgID, writeComplete := sess.transport.Write(ctx, seqno, request)

	timer := c.clock.AfterFunc(pingInterval, func() { c.handleFatalReadError(sess, ErrResponseTimeout) })

	sess.mu.Lock()
	sess.pending.insert(msgID, req)
	sess.pending.armPing(pingID, timer)
	c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
	c.metrics.setPendingPings(sess.pending.pendingPingCount())
	sess.mu.Unlock()

	if err := awaitWrite(ctx, c.clock, writeComplete, writeTimeout); err != nil {
		sess.mu.Lock()
		sess.pending.remove(msgID)
		sess.pending.disarmPing(pingID)
		c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
		c.metrics.setPendingPings(sess.pending.pendingPingCount())
		sess.mu.Unlock()
		return err
	}
	return nil
}

// scheduleNextPing arms a one-shot timer that sends the next probe
// pingInterval from now, replacing any previously scheduled one. It is
// (re)armed right after session start, every time a pong arrives, and after
// a scheduled probe fails to send.
func (c *Client) scheduleNextPing(ctx context.Context, sess *session) {
	sess.mu.Lock()
	if sess.nextPingTimer != nil {
		sess.nextPingTimer.Stop()
	}
	sess.nextPingTimer = c.clock.AfterFunc(pingInterval, func() { c.sendPingAsync(ctx, sess) })
	sess.mu.Unlock()
}

// sendPingAsync runs as the ping-scheduler timer's callback. Failures are
// swallowed and logged: a single transient write failure never takes down
// the session on its own. After a failure the next probe is scheduled
// pingInterval later (unless the session is being torn down), and that
// probe's own disconnect timer tears the session down if no pong arrives.
func (c *Client) sendPingAsync(ctx context.Context, sess *session) {
	select {
	case <-ctx.Done():
		return
	default:
	}
	if err := c.sendPing(ctx, sess); err != nil {
		c.logger.Warn("ping failed", "error", err)
		if ctx.Err() == nil {
			c.scheduleNextPing(ctx, sess)
		}
	}
}

// processPong cancels the disconnect timer for the matching ping_id,
// fulfils the pending request registered under the pong's embedded msg_id
// (an empty result mapping), and schedules the next probe. A pong whose
// ping_id has no pending entry is ignored without error.
func (c *Client) processPong(ctx context.Context, sess *session, pong Structure) {
	sess.mu.Lock()
	sess.pending.disarmPing(pong.PingID())
	req, ok := sess.pending.take(pong.MsgID())
	c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
	c.metrics.setPendingPings(sess.pending.pendingPingCount())
	sess.mu.Unlock()

	if ok {
		req.fulfilResult(map[string]any{})
	}

	c.scheduleNextPing(ctx, sess)
}
