package transition

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for the transitions counter.
const (
	OutcomeApplied    = "applied"
	OutcomeNoop       = "noop"
	OutcomeBlocked    = "blocked"
	OutcomeConflict   = "conflict"
	OutcomeNotFound   = "not_found"
	OutcomeStoreError = "store_error"
	OutcomeTimeout    = "timeout"
)

// Metrics tracks apply outcomes and latency per domain.
type Metrics struct {
	Transitions       *prometheus.CounterVec
	ApprovalsRequired prometheus.Counter
	ApplyDuration     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_transitions_total",
			Help: "Transition attempts by domain and outcome",
		}, []string{"domain", "outcome"}),
		ApprovalsRequired: f.NewCounter(prometheus.CounterOpts{
			Name: "stagegate_transitions_approval_required_total",
			Help: "CANARY to LIVE attempts blocked pending governance approval",
		}),
		ApplyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagegate_transition_apply_duration_seconds",
			Help:    "Duration of apply calls, store round-trips included",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"domain"}),
	}
}

func (m *Metrics) IncOutcome(domain, outcome string) {
	m.Transitions.WithLabelValues(domain, outcome).Inc()
}

func (m *Metrics) IncApprovalRequired() {
	m.ApprovalsRequired.Inc()
}

// ObserveApply records the duration since start.
func (m *Metrics) ObserveApply(domain string, start time.Time) {
	m.ApplyDuration.WithLabelValues(domain).Observe(time.Since(start).Seconds())
}
