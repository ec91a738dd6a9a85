// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestPendingRegistry_InsertTakeRemove_NoDuplicateMsgID(t *testing.T) {
	r := newPendingRegistry()
	req := newPendingRequest(map[string]any{"_cons": "ping"})

	r.insert(1000, req)
	require.Equal(t, 1, r.pendingRequestCount())

	got, ok := r.take(1000)
	require.True(t, ok)
	require.Same(t, req, got)
	require.Equal(t, 0, r.pendingRequestCount())

	_, ok = r.take(1000)
	require.False(t, ok, "take must be idempotent")
}

func TestPendingRegistry_Remove_FulfilsWithErrInterrupted(t *testing.T) {
	r := newPendingRegistry()
	req := newPendingRequest(map[string]any{"_cons": "ping"})
	r.insert(1000, req)

	r.remove(1000)

	select {
	case res := <-req.response:
		require.ErrorIs(t, res.err, ErrInterrupted)
	default:
		t.Fatal("expected response channel to be fulfilled")
	}

	r.remove(1000)
}

func TestPendingRegistry_ArmDisarmPing(t *testing.T) {
	r := newPendingRegistry()
	clock := clockwork.NewFakeClock()
	stopped := false
	timer := clock.AfterFunc(pingInterval, func() { stopped = true })

	r.armPing(42, timer)
	require.Equal(t, 1, r.pendingPingCount())

	ok := r.disarmPing(42)
	require.True(t, ok)
	require.Equal(t, 0, r.pendingPingCount())

	ok = r.disarmPing(42)
	require.False(t, ok, "disarm must be idempotent")

	clock.Advance(pingInterval * 2)
	require.False(t, stopped, "cancelled timer must not fire")
}

func TestPendingRegistry_ClearAll_FulfilsEveryEntryAndCancelsTimers(t *testing.T) {
	r := newPendingRegistry()
	clock := clockwork.NewFakeClock()

	req1 := newPendingRequest(map[string]any{"_cons": "ping"})
	req2 := newPendingRequest(map[string]any{"_cons": "help.getConfig"})
	r.insert(1000, req1)
	r.insert(1001, req2)

	fired := false
	r.armPing(7, clock.AfterFunc(pingInterval, func() { fired = true }))

	r.clearAll()

	require.Equal(t, 0, r.pendingRequestCount())
	require.Equal(t, 0, r.pendingPingCount())

	for _, req := range []*PendingRequest{req1, req2} {
		select {
		case res := <-req.response:
			require.ErrorIs(t, res.err, ErrInterrupted)
		default:
			t.Fatal("expected response channel to be fulfilled")
		}
	}

	clock.Advance(pingInterval * 2)
	require.False(t, fired, "clearAll must cancel the disconnect timer")
}

func TestPendingRequest_FulfilResult_IsIdempotent(t *testing.T) {
	req := newPendingRequest(map[string]any{"_cons": "ping"})

	req.fulfilResult(map[string]any{"a": 1})
	req.fulfilResult(map[string]any{"a": 2})
	req.fulfilError(ErrInterrupted)

	res := <-req.response
	require.Nil(t, res.err)
	require.Equal(t, map[string]any{"a": 1}, res.result)

	select {
	case <-req.response:
		t.Fatal("a resolved request must only ever send once")
	default:
	}
}
