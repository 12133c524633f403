// Package scheduler runs the periodic sweeps. Each job gets its own ticker;
// a run that is still going when the next tick arrives makes the tick a
// no-op rather than overlapping.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"stagegate/internal/platform/metrics"
)

// Lease is a held lock that must be released after the run.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker coordinates replicas. TryAcquire returns ok=false when another
// holder has the lease.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lease, bool, error)
}

type Job struct {
	Name     string
	Interval time.Duration
	// LeaseTTL bounds how long one replica may hold the job. Zero uses
	// the interval.
	LeaseTTL time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs    []Job
	locker  Locker
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithLocker(l Locker) Option {
	return func(s *Scheduler) {
		s.locker = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func New(jobs []Job, opts ...Option) (*Scheduler, error) {
	for _, j := range jobs {
		if j.Name == "" || j.Run == nil {
			return nil, errors.New("job requires a name and run function")
		}
		if j.Interval <= 0 {
			return nil, errors.New("job " + j.Name + " requires a positive interval")
		}
	}
	s := &Scheduler{
		jobs:   jobs,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts every job immediately, then on its interval, until ctx is
// cancelled. Job errors are logged and never stop the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes job a single time, honouring the lease when a Locker is
// configured.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) {
	if s.locker != nil {
		ttl := job.LeaseTTL
		if ttl <= 0 {
			ttl = job.Interval
		}
		lease, ok, err := s.locker.TryAcquire(ctx, job.Name, ttl)
		if err != nil {
			s.logger.ErrorContext(ctx, "job lease failed", "job", job.Name, "error", err)
			s.count(job.Name, metrics.JobFailed)
			return
		}
		if !ok {
			s.logger.DebugContext(ctx, "job lease held elsewhere", "job", job.Name)
			s.count(job.Name, metrics.JobSkipped)
			return
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "job lease release failed", "job", job.Name, "error", err)
			}
		}()
	}

	start := s.now()
	err := job.Run(ctx)
	if s.metrics != nil {
		s.metrics.ObserveJob(job.Name, start)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "job failed", "job", job.Name, "error", err)
		s.count(job.Name, metrics.JobFailed)
		return
	}
	s.count(job.Name, metrics.JobOK)
	if s.metrics != nil {
		s.metrics.MarkSuccess(job.Name, s.now())
	}
}

func (s *Scheduler) count(job, outcome string) {
	if s.metrics != nil {
		s.metrics.IncJobRun(job, outcome)
	}
}
