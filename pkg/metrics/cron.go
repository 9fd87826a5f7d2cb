package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pos"

const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// CronJobMetrics records runs of the terminal's maintenance jobs.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_runs_total",
			Help:      "Maintenance job runs by result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Wall time of one maintenance job run.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 5, 30},
		}, []string{"job"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_rows_total",
			Help:      "Rows purged or refreshed by maintenance jobs.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.rows)
	return m
}

// ObserveRun records one job run. Rows are only counted for successful runs.
func (m *CronJobMetrics) ObserveRun(job string, took time.Duration, rows int64, err error) {
	if m == nil || m.runs == nil {
		return
	}
	if job == "" {
		job = "unknown"
	}
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, JobFailed).Inc()
		return
	}
	m.runs.WithLabelValues(job, JobSucceeded).Inc()
	if rows > 0 {
		m.rows.WithLabelValues(job).Add(float64(rows))
	}
}
