// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import "context"

// dispatch observes the incoming seqno so the sequence allocator never
// falls behind what the server has already seen, then hands the body to
// dispatchBody.
func (c *Client) dispatch(ctx context.Context, sess *session, msg Message) {
	sess.mu.Lock()
	sess.seq.observe(msg.Seqno)
	sess.mu.Unlock()

	c.dispatchBody(ctx, sess, msg.MsgID, msg.Seqno, msg.Body)
}

// dispatchBody unwraps gzip exactly once, recurses into msg_container
// bodies (whose constituents are each fully re-dispatched, but whose
// envelope is never itself acknowledged), and otherwise classifies body by
// constructor tag and routes it to the relevant handler before enqueuing
// msgID for acknowledgment if seqno is odd (content-bearing).
func (c *Client) dispatchBody(ctx context.Context, sess *session, msgID int64, seqno int32, body Structure) {
	if body.Constructor() == "gzip_packed" {
		body = body.PackedData()
	}

	if body.Constructor() == "msg_container" {
		for _, inner := range body.Messages() {
			c.dispatch(ctx, sess, inner)
		}
		return
	}

	switch body.Constructor() {
	case "rpc_result":
		c.processRPCResult(sess, body)
	case "pong":
		c.processPong(ctx, sess, body)
	case "bad_server_salt":
		c.processBadServerSalt(ctx, sess, body)
	case "bad_msg_notification":
		sess.mu.Lock()
		stable := sess.stableSeqno
		sess.mu.Unlock()
		if body.ErrorCode() == 32 && !stable {
			c.processBadMsgSeqnoTooLow(ctx, sess, body)
		}
	default:
		c.logger.Debug("ignoring unhandled constructor", "constructor", body.Constructor())
	}

	if seqno&1 == 1 {
		c.enqueueAckAndMaybeFlush(ctx, sess, msgID)
	}
}

// enqueueAckAndMaybeFlush records msgID for acknowledgment and flushes the
// batch immediately if that pushes it past its size or age threshold.
func (c *Client) enqueueAckAndMaybeFlush(ctx context.Context, sess *session, msgID int64) {
	sess.mu.Lock()
	sess.ack.enqueue(msgID)
	needsFlush := sess.ack.needsFlush()
	c.metrics.setAckBufferDepth(len(sess.ack.msgIDs))
	sess.mu.Unlock()

	if !needsFlush {
		return
	}
	if err := c.flushAcks(ctx, sess); err != nil {
		c.logger.Warn("threshold ack flush failed", "error", err)
	}
}
