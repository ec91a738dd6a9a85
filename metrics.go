// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a small optional observability surface: it never affects
// control flow, it only counts and gauges what already happened. A nil
// *Metrics is always safe to use; every method is a no-op in that case,
// so Client works without a registry.
type Metrics struct {
	pendingRequests    prometheus.Gauge
	pendingPings       prometheus.Gauge
	ackBufferDepth     prometheus.Gauge
	reconnectsTotal    prometheus.Counter
	badSaltRecoveries  prometheus.Counter
	badSeqnoRecoveries prometheus.Counter
	rpcCallsTotal      *prometheus.CounterVec
	rpcErrorsTotal     *prometheus.CounterVec
}

// NewMetrics registers the core's Prometheus collectors with reg and
// returns a Metrics handle. Pass a nil *prometheus.Registry (or simply a
// nil *Metrics via WithMetrics(nil)) to disable collection entirely.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mtproto", Name: "pending_requests", Help: "Number of RPC calls awaiting a response.",
		}),
		pendingPings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mtproto", Name: "pending_pings", Help: "Number of ping probes awaiting a pong.",
		}),
		ackBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mtproto", Name: "ack_buffer_depth", Help: "Number of message ids buffered for acknowledgment.",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtproto", Name: "reconnects_total", Help: "Number of times the transport read loop was (re)started.",
		}),
		badSaltRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtproto", Name: "bad_salt_recoveries_total", Help: "Number of bad_server_salt recoveries performed.",
		}),
		badSeqnoRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtproto", Name: "bad_seqno_recoveries_total", Help: "Number of bad_msg_notification (error 32) recoveries performed.",
		}),
		rpcCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtproto", Name: "rpc_calls_total", Help: "Number of RPCCall invocations, labeled by constructor.",
		}, []string{"cons"}),
		rpcErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtproto", Name: "rpc_errors_total", Help: "Number of RPCCall invocations that returned an error, labeled by constructor.",
		}, []string{"cons"}),
	}

	reg.MustRegister(
		m.pendingRequests, m.pendingPings, m.ackBufferDepth,
		m.reconnectsTotal, m.badSaltRecoveries, m.badSeqnoRecoveries,
		m.rpcCallsTotal, m.rpcErrorsTotal,
	)
	return m
}

func (m *Metrics) setPendingRequests(n int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(float64(n))
}

func (m *Metrics) setPendingPings(n int) {
	if m == nil {
		return
	}
	m.pendingPings.Set(float64(n))
}

func (m *Metrics) setAckBufferDepth(n int) {
	if m == nil {
		return
	}
	m.ackBufferDepth.Set(float64(n))
}

func (m *Metrics) incReconnects() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) incBadSaltRecoveries() {
	if m == nil {
		return
	}
	m.badSaltRecoveries.Inc()
}

func (m *Metrics) incBadSeqnoRecoveries() {
	if m == nil {
		return
	}
	m.badSeqnoRecoveries.Inc()
}

func (m *Metrics) observeRPCCall(cons string, err error) {
	if m == nil {
		return
	}
	m.rpcCallsTotal.WithLabelValues(cons).Inc()
	if err != nil {
		m.rpcErrorsTotal.WithLabelValues(cons).Inc()
	}
}
