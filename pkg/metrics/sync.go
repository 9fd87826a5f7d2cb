package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Drain results.
const (
	DrainCompleted = "completed"
	DrainSkipped   = "skipped"
	DrainOffline   = "offline"
	DrainLocked    = "locked"
	DrainError     = "error"
)

// Submission outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDuplicate = "duplicate"
	OutcomeConflict  = "conflict"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
)

// SyncMetrics records sync engine activity. A zero value is a no-op.
type SyncMetrics struct {
	drains      *prometheus.CounterVec
	submissions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec
	online      prometheus.Gauge
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	m := &SyncMetrics{
		drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drains_total",
			Help:      "Sync queue drain passes by result.",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "submissions_total",
			Help:      "Envelope submissions to the ledger by mutation type and outcome.",
		}, []string{"type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "submit_duration_seconds",
			Help:      "Ledger submission latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "queue_depth",
			Help:      "Envelopes in the sync queue by state.",
		}, []string{"state"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "ledger_online",
			Help:      "1 when the ledger is considered reachable.",
		}),
	}
	reg.MustRegister(m.drains, m.submissions, m.latency, m.queueDepth, m.online)
	return m
}

func (m *SyncMetrics) IncDrain(result string) {
	if m == nil || m.drains == nil {
		return
	}
	m.drains.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *SyncMetrics) ObserveSubmission(mutationType, outcome string, took time.Duration) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(mutationType), normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(normalizeLabel(mutationType)).Observe(took.Seconds())
}

// SetQueueDepth publishes the queue counts.
func (m *SyncMetrics) SetQueueDepth(queued, attempting, failed int64) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.WithLabelValues("queued").Set(float64(queued))
	m.queueDepth.WithLabelValues("attempting").Set(float64(attempting))
	m.queueDepth.WithLabelValues("failed").Set(float64(failed))
}

func (m *SyncMetrics) SetOnline(online bool) {
	if m == nil || m.online == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
