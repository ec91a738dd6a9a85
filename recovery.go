// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import (
	"context"

	"github.com/rs/xid"
)

// processRPCResult looks up req_msg_id, removes the entry, unwraps one
// level of gzip if present, and fulfils the response with the decoded
// result mapping. stableSeqno becomes true and seqnoIncrement resets to 1,
// since the server has now demonstrably accepted our numbering and any
// increment accumulated while it hadn't serves no further purpose. An
// rpc_result with no registered req_msg_id is ignored.
func (c *Client) processRPCResult(sess *session, body Structure) {
	sess.mu.Lock()
	req, ok := sess.pending.take(body.ReqMsgID())
	sess.stableSeqno = true
	sess.seqnoIncrement = 1
	c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
	sess.mu.Unlock()

	if !ok {
		c.logger.Debug("rpc_result for unknown req_msg_id", "req_msg_id", body.ReqMsgID())
		return
	}

	result := body.Result()
	if result.Constructor() == "gzip_packed" {
		result = result.PackedData()
	}
	req.fulfilResult(result.AsMap())
}

// processBadServerSalt resets stableSeqno if we previously held a nonzero
// salt, installs the new salt on the transport, and transparently
// re-submits the rejected request (if still pending) in no-response mode
// so the original caller's RPCCall eventually resolves.
func (c *Client) processBadServerSalt(ctx context.Context, sess *session, body Structure) {
	sess.mu.Lock()
	if sess.transport.ServerSalt() != 0 {
		sess.stableSeqno = false
	}
	sess.mu.Unlock()

	sess.transport.SetServerSalt(body.NewServerSalt())
	c.logger.Debug("updating server salt", "new_server_salt", body.NewServerSalt())
	c.metrics.incBadSaltRecoveries()

	sess.mu.Lock()
	req, ok := sess.pending.take(body.BadMsgID())
	c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
	sess.mu.Unlock()

	if !ok {
		c.logger.Debug("bad_msg_id not found for bad_server_salt", "bad_msg_id", body.BadMsgID())
		return
	}
	c.resubmitNoResponse(ctx, sess, req)
}

// processBadMsgSeqnoTooLow handles a bad_msg_notification with error_code
// 32 (our seqno ran too far behind the server's): doubles seqnoIncrement
// (clamped), catapults last_seqno forward by it, and re-submits the
// rejected request as above. Called only while stableSeqno is still false
// (checked by the dispatcher).
func (c *Client) processBadMsgSeqnoTooLow(ctx context.Context, sess *session, body Structure) {
	sess.mu.Lock()
	if sess.seqnoIncrement > maxSeqnoIncrement/2 {
		sess.seqnoIncrement = maxSeqnoIncrement
	} else {
		sess.seqnoIncrement *= 2
	}
	sess.seq.advance(sess.seqnoIncrement)
	incr, last := sess.seqnoIncrement, sess.seq.last
	sess.mu.Unlock()

	c.logger.Debug("advancing seqno after bad_msg_notification", "increment", incr, "last_seqno", last)
	c.metrics.incBadSeqnoRecoveries()

	sess.mu.Lock()
	req, ok := sess.pending.take(body.BadMsgID())
	c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
	sess.mu.Unlock()

	if !ok {
		return
	}
	c.resubmitNoResponse(ctx, sess, req)
}

// resubmitNoResponse re-sends req.request under a freshly allocated msg_id
// without creating a new PendingRequest, so the original caller (still
// blocked on req.response in RPCCall) transparently receives the eventual
// result. After write-complete it schedules the pending entry's removal
// after responseTimeout to bound memory, instead of awaiting a response
// itself. Each attempt is tagged with its own fresh correlation id, which
// ties together that attempt's log lines (ack flush failure, resubmission,
// write failure); the id is not stored on req, so successive resubmissions
// of the same request carry different ids.
func (c *Client) resubmitNoResponse(ctx context.Context, sess *session, req *PendingRequest) {
	corrID := xid.New().String()

	if err := c.flushAcks(ctx, sess); err != nil {
		c.logger.Warn("ack flush before resubmit failed", "correlation_id", corrID, "error", err)
	}

	sess.mu.Lock()
	seqno := sess.seq.nextOdd()
	sess.mu.Unlock()

	msgID, writeComplete := sess.transport.Write(ctx, seqno, req.request)
	c.logger.Debug("resubmitting request", "correlation_id", corrID, "msg_id", msgID)

	sess.mu.Lock()
	sess.pending.insert(msgID, req)
	c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
	sess.mu.Unlock()

	if err := awaitWrite(ctx, c.clock, writeComplete, writeTimeout); err != nil {
		sess.mu.Lock()
		sess.pending.remove(msgID)
		c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
		sess.mu.Unlock()
		c.logger.Warn("resubmit write failed", "correlation_id", corrID, "error", err)
		return
	}

	c.clock.AfterFunc(responseTimeout, func() {
		sess.mu.Lock()
		sess.pending.remove(msgID)
		c.metrics.setPendingRequests(sess.pending.pendingRequestCount())
		sess.mu.Unlock()
	})
}
