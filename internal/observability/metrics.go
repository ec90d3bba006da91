// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cate-trust-layer/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Pipeline metrics
	SamplesProcessed *prometheus.CounterVec
	SamplesDropped   *prometheus.CounterVec
	DecisionsTotal   *prometheus.CounterVec
	RiskScore        prometheus.Histogram
	SizeMultiplier   prometheus.Histogram
	ProcessLatency   prometheus.Histogram

	// Attestation metrics
	SigningLatency       prometheus.Histogram
	SigningErrors        prometheus.Counter
	VerificationFailures *prometheus.CounterVec

	// Circuit breaker metrics
	BreakerState       prometheus.Gauge
	BreakerTransitions *prometheus.CounterVec

	// Oracle feed metrics
	FeedReconnects prometheus.Counter
	FeedState      *prometheus.GaugeVec
	FeedFallbacks  *prometheus.CounterVec

	// Fan-out and storage metrics
	DecisionsPublished prometheus.Counter
	PublishFailures    prometheus.Counter
	StorageErrors      *prometheus.CounterVec

	// Solana RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastDecision *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg registers on the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "cate"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Pipeline metrics
		SamplesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "samples_processed_total",
			Help:      "Total number of oracle samples processed by source tag",
		}, []string{"source"}),
		SamplesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "samples_dropped_total",
			Help:      "Total number of oracle samples dropped by reason",
		}, []string{"reason"}),
		DecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Total number of signed decisions by action",
		}, []string{"action"}),
		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "risk_score",
			Help:      "Distribution of decision risk scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		SizeMultiplier: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "size_multiplier",
			Help:      "Distribution of decision size multipliers",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ProcessLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "process_latency_seconds",
			Help:      "Sample to signed decision latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),

		// Attestation metrics
		SigningLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "attestation",
			Name:      "signing_latency_seconds",
			Help:      "Decision signing latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14),
		}),
		SigningErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attestation",
			Name:      "signing_errors_total",
			Help:      "Total number of failed signing attempts",
		}),
		VerificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attestation",
			Name:      "verification_failures_total",
			Help:      "Total number of failed verifications by reason",
		}, []string{"reason"}),

		// Circuit breaker metrics
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Global circuit state (0 closed, 0.5 half-open, 1 open)",
		}),
		BreakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Total number of global circuit transitions",
		}, []string{"from", "to"}),

		// Oracle feed metrics
		FeedReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "reconnects_total",
			Help:      "Total number of stream reconnect attempts",
		}),
		FeedState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "stream_state",
			Help:      "1 for the current stream connection state, 0 otherwise",
		}, []string{"state"}),
		FeedFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "fallback_samples_total",
			Help:      "Total number of non-stream samples by source tag",
		}, []string{"source"}),

		// Fan-out and storage metrics
		DecisionsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "decisions_published_total",
			Help:      "Total number of signed decisions published",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "failures_total",
			Help:      "Total number of failed decision publishes",
		}),
		StorageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total number of storage errors by store and operation",
		}, []string{"store", "operation"}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Health metrics
		LastDecision: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_decision_timestamp",
			Help:      "Unix timestamp of the last signed decision per asset",
		}, []string{"asset"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler serving the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordSample counts a processed sample.
func (m *Metrics) RecordSample(source domain.SourceTag) {
	if m == nil {
		return
	}
	m.SamplesProcessed.WithLabelValues(source.String()).Inc()
	if source != domain.SourceLive {
		m.FeedFallbacks.WithLabelValues(source.String()).Inc()
	}
}

// RecordDropped counts a dropped sample.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.SamplesDropped.WithLabelValues(reason).Inc()
}

// RecordDecision records a signed decision and the end-to-end latency.
func (m *Metrics) RecordDecision(d domain.RiskDecision, latency time.Duration) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(d.Action.String()).Inc()
	m.RiskScore.Observe(d.RiskScore)
	m.SizeMultiplier.Observe(d.SizeMultiplier)
	m.ProcessLatency.Observe(latency.Seconds())
	m.LastDecision.WithLabelValues(d.AssetID).Set(float64(d.Timestamp))
}

// RecordSigning records signing latency and failures.
func (m *Metrics) RecordSigning(latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.SigningLatency.Observe(latency.Seconds())
	if err != nil {
		m.SigningErrors.Inc()
	}
}

// RecordVerificationFailure counts a failed verification.
func (m *Metrics) RecordVerificationFailure(reason string) {
	if m == nil {
		return
	}
	m.VerificationFailures.WithLabelValues(reason).Inc()
}

// RecordBreakerTransition updates the breaker gauge and transition counter.
// It matches breaker.StateChangeFunc.
func (m *Metrics) RecordBreakerTransition(from, to domain.CircuitState, _ string) {
	if m == nil {
		return
	}
	m.BreakerState.Set(to.Gauge())
	m.BreakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// feedStates lists every stream state exported by FeedState.
var feedStates = []string{"CONNECTING", "CONNECTED", "RECONNECTING", "ERROR", "CLOSED"}

// RecordFeedState marks state as the current stream state.
func (m *Metrics) RecordFeedState(state string) {
	if m == nil {
		return
	}
	for _, s := range feedStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.FeedState.WithLabelValues(s).Set(v)
	}
	if state == "RECONNECTING" {
		m.FeedReconnects.Inc()
	}
}

// RecordPublish counts a decision publish outcome.
func (m *Metrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PublishFailures.Inc()
		return
	}
	m.DecisionsPublished.Inc()
}

// RecordStorageError counts a failed store operation.
func (m *Metrics) RecordStorageError(store, operation string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(store, operation).Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}
