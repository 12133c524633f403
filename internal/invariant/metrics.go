package invariant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Violations  *prometheus.GaugeVec
	CheckErrors *prometheus.CounterVec
	Runs        *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Violations: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stagegate_invariant_violations",
			Help: "Violations found by the most recent run of each check",
		}, []string{"check"}),
		CheckErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_invariant_check_errors_total",
			Help: "Checks that could not complete",
		}, []string{"check"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_invariant_runs_total",
			Help: "Invariant runs by result",
		}, []string{"passed"}),
	}
}

func (m *Metrics) SetViolations(check string, n int) {
	m.Violations.WithLabelValues(check).Set(float64(n))
}

func (m *Metrics) IncCheckError(check string) {
	m.CheckErrors.WithLabelValues(check).Inc()
}

func (m *Metrics) IncRun(passed bool) {
	label := "false"
	if passed {
		label = "true"
	}
	m.Runs.WithLabelValues(label).Inc()
}
