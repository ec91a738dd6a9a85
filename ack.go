// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	ackMaxBatchSize = 32
	ackMaxAge       = 10 * time.Second
)

// ackBatcher buffers server message ids awaiting batched acknowledgment and
// flushes them on size or time threshold. It never flushes while
// stableSeqno is false: the server has not yet accepted our numbering, and
// sending a pure-ack message under unconfirmed seqnos would itself be
// subject to bad_msg_notification.
type ackBatcher struct {
	clock     clockwork.Clock
	msgIDs    []int64
	lastFlush time.Time
}

func newAckBatcher(clock clockwork.Clock) *ackBatcher {
	return &ackBatcher{clock: clock, lastFlush: clock.Now()}
}

// enqueue appends msgID to the batch awaiting acknowledgment.
func (b *ackBatcher) enqueue(msgID int64) {
	b.msgIDs = append(b.msgIDs, msgID)
}

// needsFlush reports whether the size or age threshold has been crossed.
func (b *ackBatcher) needsFlush() bool {
	if len(b.msgIDs) == 0 {
		return false
	}
	return len(b.msgIDs) >= ackMaxBatchSize || b.clock.Now().Sub(b.lastFlush) > ackMaxAge
}

// snapshotForFlush is called by Client with the session mutex held for the
// duration of allocating the seqno and snapshotting msgIDs, but the actual
// transport write happens outside the lock (see flushAcks). It returns the
// snapshot to write, or nil (touching nothing) if the gate is closed or the
// buffer is empty; lastFlush is reset only when a snapshot is taken.
func (b *ackBatcher) snapshotForFlush(stableSeqno bool) []int64 {
	if !stableSeqno || len(b.msgIDs) == 0 {
		return nil
	}

	b.lastFlush = b.clock.Now()
	ids := b.msgIDs
	b.msgIDs = nil
	return ids
}

// awaitWrite blocks on writeComplete until it fires, ctx is cancelled, or
// timeout (measured on clock, so tests can use a fake clock instead of
// sleeping) elapses.
func awaitWrite(ctx context.Context, clock clockwork.Clock, writeComplete <-chan error, timeout time.Duration) error {
	select {
	case err, ok := <-writeComplete:
		if !ok {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(timeout):
		return ErrWriteTimeout
	}
}

// flushAcks drains sess's ack buffer onto its transport as a single
// msgs_ack message. It is a no-op if stableSeqno is false or the buffer is
// empty. If the write fails, the snapshotted ids are put back at the front
// of the buffer so a later flush acknowledges them. Used both opportunistically (at the top of RPCCall and before a
// recovery re-submission) and by the inbound dispatcher once a threshold
// is crossed.
func (c *Client) flushAcks(ctx context.Context, sess *session) error {
	sess.mu.Lock()
	ids := sess.ack.snapshotForFlush(sess.stableSeqno)
	var seqno int32
	if ids != nil {
		seqno = sess.seq.nextEven()
	}
	c.metrics.setAckBufferDepth(len(sess.ack.msgIDs))
	sess.mu.Unlock()

	if ids == nil {
		return nil
	}

	_, writeComplete := sess.transport.Write(ctx, seqno, map[string]any{
		"_cons":   "msgs_ack",
		"msg_ids": ids,
	})
	if err := awaitWrite(ctx, c.clock, writeComplete, writeTimeout); err != nil {
		sess.mu.Lock()
		sess.ack.msgIDs = append(ids, sess.ack.msgIDs...)
		c.metrics.setAckBufferDepth(len(sess.ack.msgIDs))
		sess.mu.Unlock()
		return err
	}
	return nil
}
