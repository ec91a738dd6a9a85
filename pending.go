// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import "github.com/jonboulle/clockwork"

// pendingResult is the single-fire envelope delivered on a PendingRequest's
// response channel: exactly one of result/err is set.
type pendingResult struct {
	result map[string]any
	err    error
}

// PendingRequest is a logical RPC in flight. It has stable identity (a
// pointer) independent of the msg_id it is currently registered under, so
// that the recovery policy can re-register it under a new msg_id without
// callers losing their response channel.
type PendingRequest struct {
	request  map[string]any
	response chan pendingResult
	done     bool
}

func newPendingRequest(request map[string]any) *PendingRequest {
	return &PendingRequest{
		request:  request,
		response: make(chan pendingResult, 1),
	}
}

// fulfilResult resolves the pending request with a successful result. A
// no-op if already resolved.
func (p *PendingRequest) fulfilResult(result map[string]any) {
	if p.done {
		return
	}
	p.done = true
	p.response <- pendingResult{result: result}
}

// fulfilError resolves the pending request with an error. A no-op if
// already resolved.
func (p *PendingRequest) fulfilError(err error) {
	if p.done {
		return
	}
	p.done = true
	p.response <- pendingResult{err: err}
}

// pendingRegistry owns two mappings: outstanding RPC calls keyed by
// outgoing message id, and outstanding ping probes keyed by ping id with
// their disconnect timers. All mutating methods assume the caller holds
// the owning session's mutex.
type pendingRegistry struct {
	byMsgID  map[int64]*PendingRequest
	byPingID map[int64]clockwork.Timer
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{
		byMsgID:  make(map[int64]*PendingRequest),
		byPingID: make(map[int64]clockwork.Timer),
	}
}

// insert registers req under msgID. At most one entry exists per msgID;
// a second insert under the same id replaces the first (the caller is
// responsible for not doing this except during recovery re-submission,
// which always uses a freshly assigned msgID).
func (r *pendingRegistry) insert(msgID int64, req *PendingRequest) {
	r.byMsgID[msgID] = req
}

// take removes and returns the pending request registered under msgID, if
// any. Idempotent: a second call for the same id returns (nil, false).
func (r *pendingRegistry) take(msgID int64) (*PendingRequest, bool) {
	req, ok := r.byMsgID[msgID]
	if !ok {
		return nil, false
	}
	delete(r.byMsgID, msgID)
	return req, true
}

// remove deregisters msgID without returning it, fulfilling its response
// with ErrInterrupted if it was still unresolved. Idempotent.
func (r *pendingRegistry) remove(msgID int64) {
	req, ok := r.byMsgID[msgID]
	if !ok {
		return
	}
	delete(r.byMsgID, msgID)
	req.fulfilError(ErrInterrupted)
}

// armPing records a pending pong under pingID with a disconnect timer.
func (r *pendingRegistry) armPing(pingID int64, timer clockwork.Timer) {
	r.byPingID[pingID] = timer
}

// disarmPing cancels and removes the disconnect timer for pingID.
// Idempotent; returns false if no such pong was pending.
func (r *pendingRegistry) disarmPing(pingID int64) bool {
	timer, ok := r.byPingID[pingID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(r.byPingID, pingID)
	return true
}

// clearAll fulfils every still-pending RPC response with ErrInterrupted and
// cancels every pending ping timer, then empties both maps. Used by
// Disconnect and by session restart.
func (r *pendingRegistry) clearAll() {
	for msgID, req := range r.byMsgID {
		req.fulfilError(ErrInterrupted)
		delete(r.byMsgID, msgID)
	}
	for pingID, timer := range r.byPingID {
		timer.Stop()
		delete(r.byPingID, pingID)
	}
}

func (r *pendingRegistry) pendingRequestCount() int { return len(r.byMsgID) }
func (r *pendingRegistry) pendingPingCount() int    { return len(r.byPingID) }
