package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ambient Prometheus metrics for the proxy: counters for
// discovery outcomes per phase, a gauge for active sessions, and a
// histogram for upstream bridge call latency. These are protocol-adjacent
// counters kept regardless of whether a full metrics backend is wired.
// DiscoveryResults, BridgeDuration, and CacheOutcomes double as the
// discovery.Recorder, bridge.Recorder, and cache.Recorder ports (see
// RecordOutcome/ObserveCallDuration/RecordCacheOutcome below) so the core
// services can report outcomes without importing this adapter package.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	DiscoveryResults *prometheus.CounterVec
	BridgeDuration   *prometheus.HistogramVec
	CacheOutcomes    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spacebridge",
				Name:      "requests_total",
				Help:      "Total number of requests processed by method and status",
			},
			[]string{"method", "status"}, // method=JSON-RPC method|stream|terminate|options|unknown, status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "spacebridge",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"method"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "spacebridge",
				Name:      "active_sessions",
				Help:      "Number of active sessions",
			},
		),
		DiscoveryResults: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spacebridge",
				Name:      "discovery_results_total",
				Help:      "Discovery pipeline outcomes by phase and result",
			},
			[]string{"phase", "outcome"}, // phase=metadata|schema, outcome=hit/miss/revalidated/error
		),
		BridgeDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "spacebridge",
				Name:      "bridge_call_duration_seconds",
				Help:      "Upstream bridge tools/call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"}, // outcome=ok|error
		),
		CacheOutcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spacebridge",
				Name:      "cache_outcomes_total",
				Help:      "Two-level cache hit/miss/revalidation counts",
			},
			[]string{"map", "outcome"}, // map=metadata|schema, outcome=hit/miss/revalidation
		),
	}
}

// RecordOutcome implements discovery.Recorder.
func (m *Metrics) RecordOutcome(phase, outcome string) {
	m.DiscoveryResults.WithLabelValues(phase, outcome).Inc()
}

// ObserveCallDuration implements bridge.Recorder.
func (m *Metrics) ObserveCallDuration(outcome string, seconds float64) {
	m.BridgeDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordCacheOutcome implements cache.Recorder.
func (m *Metrics) RecordCacheOutcome(mapName, outcome string) {
	m.CacheOutcomes.WithLabelValues(mapName, outcome).Inc()
}

// SetActiveSessions implements the session gauge port sampled
// periodically by startIdleSweep in cmd/spacebridge.
func (m *Metrics) SetActiveSessions(count float64) {
	m.ActiveSessions.Set(count)
}
