package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveRun("purge", 20*time.Millisecond, 3, nil)
	m.ObserveRun("purge", 5*time.Millisecond, 9, errors.New("disk full"))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	ok, err := fetchCounterValue(mfs, "pos_cron_job_runs_total", "result", JobSucceeded)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ok)

	failed, err := fetchCounterValue(mfs, "pos_cron_job_runs_total", "result", JobFailed)
	require.NoError(t, err)
	assert.Equal(t, 1.0, failed)

	rows, err := fetchCounterValue(mfs, "pos_cron_job_rows_total", "job", "purge")
	require.NoError(t, err)
	assert.Equal(t, 3.0, rows, "rows from failed runs are not counted")

	sum, err := fetchHistogramSum(mfs, "pos_cron_job_duration_seconds", "job", "purge")
	require.NoError(t, err)
	assert.InDelta(t, 0.025, sum, 1e-9)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, 1, nil)
	NewCronJobMetrics(nil).ObserveRun("", time.Second, 1, errors.New("x"))
}
