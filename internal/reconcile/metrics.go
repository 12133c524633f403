package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks sweep results. Findings are labelled by sweep ("stage" or
// "candidate") and kind (issue or recommendation).
type Metrics struct {
	Findings      *prometheus.CounterVec
	Repaired      prometheus.Counter
	Skipped       prometheus.Counter
	EntityErrors  *prometheus.CounterVec
	Deferred      *prometheus.CounterVec
	SweepDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Findings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_reconcile_findings_total",
			Help: "Drift findings by sweep and kind",
		}, []string{"sweep", "kind"}),
		Repaired: f.NewCounter(prometheus.CounterOpts{
			Name: "stagegate_reconcile_repaired_total",
			Help: "Candidates moved QUEUED_FOR_QC to READY by the repair sweep",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "stagegate_reconcile_skipped_total",
			Help: "Repairs skipped because the candidate changed concurrently",
		}),
		EntityErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_reconcile_entity_errors_total",
			Help: "Per-entity failures collected into sweep reports",
		}, []string{"sweep"}),
		Deferred: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_reconcile_deferred_total",
			Help: "Passes that hit the row budget and deferred the remainder",
		}, []string{"sweep"}),
		SweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagegate_reconcile_duration_seconds",
			Help:    "Duration of reconcile passes",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep"}),
	}
}

func (m *Metrics) IncFinding(sweep, kind string) {
	m.Findings.WithLabelValues(sweep, kind).Inc()
}

func (m *Metrics) IncRepaired() { m.Repaired.Inc() }

func (m *Metrics) IncSkipped() { m.Skipped.Inc() }

func (m *Metrics) IncEntityError(sweep string) {
	m.EntityErrors.WithLabelValues(sweep).Inc()
}

func (m *Metrics) IncDeferred(sweep string) {
	m.Deferred.WithLabelValues(sweep).Inc()
}

func (m *Metrics) ObserveSweep(sweep string, start time.Time) {
	m.SweepDuration.WithLabelValues(sweep).Observe(time.Since(start).Seconds())
}
