package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks delivery of transition records to the sink.
type Metrics struct {
	Emitted          *prometheus.CounterVec
	QueueDropped     prometheus.Counter
	SinkFailures     prometheus.Counter
	BreakerDropped   prometheus.Counter
	BreakerState     prometheus.Gauge
	DeliveryDuration prometheus.Histogram
}

// NewMetrics registers audit metrics with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_audit_records_emitted_total",
			Help: "Transition records accepted by the audit publisher",
		}, []string{"domain", "allowed"}),
		QueueDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "stagegate_audit_queue_dropped_total",
			Help: "Transition records dropped because the delivery queue was full",
		}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "stagegate_audit_sink_failures_total",
			Help: "Transition records the sink rejected after retries",
		}),
		BreakerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "stagegate_audit_breaker_dropped_total",
			Help: "Transition records dropped while the sink circuit was open",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "stagegate_audit_breaker_state",
			Help: "Sink circuit breaker state (0=closed, 1=open)",
		}),
		DeliveryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stagegate_audit_delivery_duration_seconds",
			Help:    "Time to deliver one record to the sink, retries included",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) IncEmitted(domain Domain, allowed bool) {
	a := "false"
	if allowed {
		a = "true"
	}
	m.Emitted.WithLabelValues(string(domain), a).Inc()
}

func (m *Metrics) IncQueueDropped() {
	m.QueueDropped.Inc()
}

func (m *Metrics) IncSinkFailures() {
	m.SinkFailures.Inc()
}

func (m *Metrics) IncBreakerDropped() {
	m.BreakerDropped.Inc()
}

func (m *Metrics) SetBreakerState(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}

// ObserveDelivery records the duration since start.
func (m *Metrics) ObserveDelivery(start time.Time) {
	m.DeliveryDuration.Observe(time.Since(start).Seconds())
}
