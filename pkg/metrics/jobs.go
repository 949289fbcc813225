package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job run outcomes. Skipped means another replica held the job's lock.
const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobSkipped   = "skipped"
)

// JobMetrics tracks the maintenance jobs run by the cron worker.
type JobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	rows        *prometheus.CounterVec
	pending     prometheus.Gauge
}

// NewJobMetrics registers job metrics on reg. A nil registerer yields a no-op recorder.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Maintenance job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Wall time of maintenance jobs that ran.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_rows_total",
			Help: "Rows removed by maintenance jobs.",
		}, []string{"job"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_events",
			Help: "Unpublished outbox rows seen by the last retention run.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.rows, m.pending)
	return m
}

// Skipped counts a run this replica did not perform.
func (m *JobMetrics) Skipped(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), JobSkipped).Inc()
}

// Finished records a job that ran, successfully when err is nil.
func (m *JobMetrics) Finished(job string, took time.Duration, finishedAt time.Time, err error) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, JobFailed).Inc()
		return
	}
	m.runs.WithLabelValues(job, JobSucceeded).Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
}

// Rows adds n removed rows to job's total.
func (m *JobMetrics) Rows(job string, n int64) {
	if m == nil || m.rows == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}

// OutboxPending records the current outbox backlog.
func (m *JobMetrics) OutboxPending(n int64) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
