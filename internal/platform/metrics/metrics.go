// Package metrics holds process-level Prometheus collectors shared by the
// background jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcomes.
const (
	JobOK      = "ok"
	JobFailed  = "failed"
	JobSkipped = "lease_held"
)

// Metrics holds the scheduler's collectors.
type Metrics struct {
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	LastSuccess *prometheus.GaugeVec
}

// New creates and registers the collectors on reg, or on the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		}, []string{"job", "outcome"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagegate_job_duration_seconds",
			Help:    "Duration of scheduled job runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		LastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stagegate_job_last_success_timestamp_seconds",
			Help: "Unix time of each job's last successful run",
		}, []string{"job"}),
	}
}

func (m *Metrics) IncJobRun(job, outcome string) {
	m.JobRuns.WithLabelValues(job, outcome).Inc()
}

func (m *Metrics) ObserveJob(job string, start time.Time) {
	m.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

func (m *Metrics) MarkSuccess(job string, at time.Time) {
	m.LastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
}
