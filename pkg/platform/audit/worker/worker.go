// Package worker delivers queued transition records to the durable sink.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/platform/circuit"
)

const (
	defaultAttemptTimeout = 2 * time.Second
	defaultMaxElapsed     = 10 * time.Second
)

// Worker drains an inbox into a Sink. Each record is retried with
// exponential backoff; repeated failures open a circuit breaker, after which
// records are dropped except for a periodic probe.
type Worker struct {
	sink    audit.Sink
	inbox   <-chan audit.TransitionRecord
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *audit.Metrics

	attemptTimeout time.Duration
	maxElapsed     time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *audit.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) { w.breaker = b }
}

// WithRetry bounds a single record's delivery: attempt is the per-call
// timeout and maxElapsed caps the total backoff window.
func WithRetry(attempt, maxElapsed time.Duration) Option {
	return func(w *Worker) {
		if attempt > 0 {
			w.attemptTimeout = attempt
		}
		if maxElapsed > 0 {
			w.maxElapsed = maxElapsed
		}
	}
}

func NewWorker(sink audit.Sink, inbox <-chan audit.TransitionRecord, opts ...Option) *Worker {
	w := &Worker{
		sink:           sink,
		inbox:          inbox,
		logger:         slog.New(slog.DiscardHandler),
		attemptTimeout: defaultAttemptTimeout,
		maxElapsed:     defaultMaxElapsed,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.breaker == nil {
		w.breaker = circuit.New("audit-sink")
	}
	return w
}

// Run delivers records until the inbox is closed and drained.
func (w *Worker) Run() {
	for record := range w.inbox {
		w.deliver(record)
	}
}

func (w *Worker) deliver(record audit.TransitionRecord) {
	if !w.breaker.Allow() {
		if w.metrics != nil {
			w.metrics.IncBreakerDropped()
		}
		w.logger.Debug("audit sink circuit open, dropping record",
			"record_id", record.ID,
			"entity_id", record.EntityID,
		)
		return
	}

	start := time.Now()
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), w.attemptTimeout)
		defer cancel()
		return w.sink.Append(ctx, record)
	}, w.newBackoff())
	if w.metrics != nil {
		w.metrics.ObserveDelivery(start)
	}

	if err != nil {
		_, change := w.breaker.RecordFailure()
		if w.metrics != nil {
			w.metrics.IncSinkFailures()
			if change.Opened {
				w.metrics.SetBreakerState(true)
			}
		}
		w.logger.Error("audit sink append failed",
			"record_id", record.ID,
			"entity_id", record.EntityID,
			"domain", record.Domain,
			"from", record.From,
			"to", record.To,
			"error", err,
		)
		return
	}

	if _, change := w.breaker.RecordSuccess(); change.Closed && w.metrics != nil {
		w.metrics.SetBreakerState(false)
	}
}

// newBackoff returns a fresh policy; while the circuit is open a probe gets a
// single attempt.
func (w *Worker) newBackoff() backoff.BackOff {
	if w.breaker.IsOpen() {
		return &backoff.StopBackOff{}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = w.maxElapsed
	return bo
}
