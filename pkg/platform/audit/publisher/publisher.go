// Package publisher records transition decisions without ever blocking the
// caller.
//
// Every emitted record lands synchronously in the in-process Log (the recent-N
// cache) and is queued for asynchronous delivery to the durable Sink. A full
// queue drops the record from the delivery path and counts it; the mutation
// that produced it is never failed.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/platform/audit/worker"
	"stagegate/pkg/platform/circuit"
	"stagegate/pkg/requestcontext"
)

// ErrQueueFull is returned by Emit when the record could not be queued for
// the sink. The record is still retained in the Log.
var ErrQueueFull = errors.New("audit queue full")

const defaultQueueSize = 1024

// Publisher fans transition records out to the Log and the Sink.
type Publisher struct {
	log     *audit.Log
	logger  *slog.Logger
	metrics *audit.Metrics

	queueSize  int
	breaker    *circuit.Breaker
	workerOpts []worker.Option

	mu     sync.RWMutex
	queue  chan audit.TransitionRecord
	closed bool
	wg     sync.WaitGroup
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *audit.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithQueueSize bounds the number of records awaiting sink delivery.
func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) { p.breaker = b }
}

// WithRetry bounds per-record sink delivery.
func WithRetry(attempt, maxElapsed time.Duration) Option {
	return func(p *Publisher) {
		p.workerOpts = append(p.workerOpts, worker.WithRetry(attempt, maxElapsed))
	}
}

// New creates a publisher over log. A nil sink keeps records in the Log only.
func New(log *audit.Log, sink audit.Sink, opts ...Option) *Publisher {
	p := &Publisher{
		log:       log,
		logger:    slog.New(slog.DiscardHandler),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = audit.NewLog(audit.DefaultLogCapacity)
	}
	if sink == nil {
		return p
	}

	p.queue = make(chan audit.TransitionRecord, p.queueSize)
	wopts := append([]worker.Option{worker.WithLogger(p.logger)}, p.workerOpts...)
	if p.metrics != nil {
		wopts = append(wopts, worker.WithMetrics(p.metrics))
	}
	if p.breaker != nil {
		wopts = append(wopts, worker.WithBreaker(p.breaker))
	}
	w := worker.NewWorker(sink, p.queue, wopts...)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.Run()
	}()
	return p
}

// Emit records a transition decision. It fills in ID, Timestamp and
// RequestID when unset and never blocks.
func (p *Publisher) Emit(ctx context.Context, record audit.TransitionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = requestcontext.Now(ctx)
	}
	if record.RequestID == "" {
		record.RequestID = requestcontext.RequestID(ctx)
	}

	p.log.Append(record)
	if p.metrics != nil {
		p.metrics.IncEmitted(record.Domain, record.Allowed)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.queue == nil || p.closed {
		return nil
	}
	select {
	case p.queue <- record:
		return nil
	default:
		if p.metrics != nil {
			p.metrics.IncQueueDropped()
		}
		p.logger.WarnContext(ctx, "audit queue full, record not delivered to sink",
			"record_id", record.ID,
			"entity_id", record.EntityID,
		)
		return ErrQueueFull
	}
}

// Recent returns up to limit records from the Log, newest first.
func (p *Publisher) Recent(limit int) []audit.TransitionRecord {
	return p.log.Recent(limit)
}

// ForEntity returns up to limit records for one entity, newest first.
func (p *Publisher) ForEntity(entityID string, limit int) []audit.TransitionRecord {
	return p.log.ForEntity(entityID, limit)
}

// Log exposes the underlying ring buffer.
func (p *Publisher) Log() *audit.Log {
	return p.log
}

// Close stops accepting sink deliveries and drains the queue.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}
