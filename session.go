// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
)

// session bundles one connection's lifetime state: its transport handle,
// sequence allocator, stability flag, pending registry, and ack batcher.
// It carries its own mutex so that a read loop whose transport has already
// errored, but whose goroutine hasn't exited yet, can never mutate the
// *next* session's state after Client races ahead and creates one (every
// dispatch/recovery/ping method is handed the specific *session it belongs
// to, never looks up a "current" session through Client).
type session struct {
	mu sync.Mutex

	transport      Transport
	seq            seqnoAllocator
	stableSeqno    bool
	seqnoIncrement int32
	pending        *pendingRegistry
	ack            *ackBatcher

	loopCancel    context.CancelFunc
	nextPingTimer clockwork.Timer
	closed        bool
}

func newSession(transport Transport, clock clockwork.Clock, loopCancel context.CancelFunc) *session {
	return &session{
		transport:      transport,
		seqnoIncrement: 1,
		pending:        newPendingRegistry(),
		ack:            newAckBatcher(clock),
		loopCancel:     loopCancel,
	}
}

// teardown cancels the read loop and ping timers, fulfils every pending
// response with ErrInterrupted, and stops the transport. Idempotent: a
// second call is a no-op, which is what makes Client.Disconnect() and a
// concurrent fatal-read-error teardown of the same session safe to race.
func (s *session) teardown(logger *slog.Logger) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
	if s.nextPingTimer != nil {
		s.nextPingTimer.Stop()
		s.nextPingTimer = nil
	}
	s.pending.clearAll()
	s.mu.Unlock()

	if err := s.transport.Stop(); err != nil && logger != nil {
		logger.Debug("transport stop returned an error", "error", err)
	}
}
