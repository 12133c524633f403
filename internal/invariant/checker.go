// Package invariant runs global health assertions over candidate state.
// Checks are read-only and independent: each runs in its own goroutine and a
// failing check is reported without stopping the others.
package invariant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"stagegate/internal/lifecycle"
	dErrors "stagegate/pkg/domain-errors"
	"stagegate/pkg/platform/sentinel"
	"stagegate/pkg/requestcontext"
)

// Check names.
const (
	CheckTerminalWithQueuedVerification = "terminal_with_queued_verification"
	CheckQCQueueCeiling                 = "qc_queue_ceiling"
	CheckOrphanedLabPromotion           = "orphaned_lab_promotion"
)

const (
	DefaultQCCeiling    = 48 * time.Hour
	DefaultLabOrphanAge = time.Hour
	DefaultRowLimit     = 500
	DefaultStoreTimeout = 3 * time.Second
)

type Store interface {
	ListQueuedVerifications(ctx context.Context, dispositions []lifecycle.Disposition, limit int) ([]lifecycle.CandidateVerification, error)
	ListCandidatesInDisposition(ctx context.Context, d lifecycle.Disposition, updatedBefore time.Time, limit int) ([]lifecycle.Candidate, error)
	ListCandidatesWithoutBot(ctx context.Context, d lifecycle.Disposition, updatedBefore time.Time, limit int) ([]lifecycle.Candidate, error)
}

var errCheckPanicked = errors.New("check panicked")

type Violation struct {
	Check       string `json:"check"`
	CandidateID string `json:"candidate_id"`
	Detail      string `json:"detail"`
}

// CheckError records a check that could not run to completion.
type CheckError struct {
	Check   string       `json:"check"`
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
}

type Report struct {
	CheckedAt  time.Time    `json:"checked_at"`
	Passed     bool         `json:"passed"`
	Violations []Violation  `json:"violations"`
	Errors     []CheckError `json:"errors"`
}

type Checker struct {
	store        Store
	qcCeiling    time.Duration
	labOrphanAge time.Duration
	rowLimit     int
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
}

type Option func(*Checker)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// WithQCCeiling sets how long a candidate may sit in QUEUED_FOR_QC before it
// counts as a standing defect.
func WithQCCeiling(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.qcCeiling = d
		}
	}
}

func WithLabOrphanAge(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.labOrphanAge = d
		}
	}
}

func WithRowLimit(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.rowLimit = n
		}
	}
}

// WithStoreTimeout bounds the store query behind each check.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

func New(store Store, opts ...Option) (*Checker, error) {
	if store == nil {
		return nil, errors.New("invariant store is required")
	}
	c := &Checker{
		store:        store,
		qcCeiling:    DefaultQCCeiling,
		labOrphanAge: DefaultLabOrphanAge,
		rowLimit:     DefaultRowLimit,
		storeTimeout: DefaultStoreTimeout,
		logger:       slog.New(slog.DiscardHandler),
		tracer:       otel.Tracer("stagegate/invariant"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type check struct {
	name string
	run  func(ctx context.Context, now time.Time) ([]Violation, error)
}

func (c *Checker) checks() []check {
	return []check{
		{CheckTerminalWithQueuedVerification, c.terminalWithQueuedVerification},
		{CheckQCQueueCeiling, c.qcQueueCeiling},
		{CheckOrphanedLabPromotion, c.orphanedLabPromotion},
	}
}

// Check runs every assertion concurrently and merges the results. Passed is
// true only when no check found a violation and every check completed.
func (c *Checker) Check(ctx context.Context) *Report {
	ctx, span := c.tracer.Start(ctx, "invariant.Check")
	defer span.End()

	now := requestcontext.Now(ctx)
	report := &Report{
		CheckedAt:  now,
		Violations: []Violation{},
		Errors:     []CheckError{},
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, chk := range c.checks() {
		g.Go(func() error {
			violations, err := c.runCheck(ctx, chk, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors = append(report.Errors, CheckError{Check: chk.name, Code: classify(err), Message: err.Error()})
				return nil
			}
			report.Violations = append(report.Violations, violations...)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Violations, func(i, j int) bool {
		if report.Violations[i].Check == report.Violations[j].Check {
			return report.Violations[i].CandidateID < report.Violations[j].CandidateID
		}
		return report.Violations[i].Check < report.Violations[j].Check
	})
	sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].Check < report.Errors[j].Check })
	report.Passed = len(report.Violations) == 0 && len(report.Errors) == 0

	span.SetAttributes(
		attribute.Bool("invariant.passed", report.Passed),
		attribute.Int("invariant.violations", len(report.Violations)),
	)
	if c.metrics != nil {
		c.metrics.IncRun(report.Passed)
	}
	c.logger.InfoContext(ctx, "invariant check complete",
		"passed", report.Passed,
		"violations", len(report.Violations),
		"errors", len(report.Errors),
	)
	return report
}

// runCheck isolates one check, converting a panic into an error so the
// remaining checks still report. Each check is a single store query and is
// bounded by the store timeout.
func (c *Checker) runCheck(ctx context.Context, chk check, now time.Time) (violations []Violation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errCheckPanicked, r)
		}
		if err != nil {
			if c.metrics != nil {
				c.metrics.IncCheckError(chk.name)
			}
			c.logger.ErrorContext(ctx, "invariant check failed", "check", chk.name, "error", err)
			return
		}
		if c.metrics != nil {
			c.metrics.SetViolations(chk.name, len(violations))
		}
		for _, v := range violations {
			c.logger.WarnContext(ctx, "invariant violated",
				"check", v.Check,
				"candidate_id", v.CandidateID,
				"detail", v.Detail,
			)
		}
	}()
	qctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return chk.run(qctx, now)
}

func classify(err error) dErrors.Code {
	switch {
	case errors.Is(err, sentinel.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return dErrors.CodeTimeout
	case errors.Is(err, errCheckPanicked):
		return dErrors.CodeInternal
	default:
		return dErrors.CodeStoreError
	}
}

func (c *Checker) terminalWithQueuedVerification(ctx context.Context, _ time.Time) ([]Violation, error) {
	rows, err := c.store.ListQueuedVerifications(ctx,
		[]lifecycle.Disposition{lifecycle.DispositionRejected, lifecycle.DispositionMerged}, c.rowLimit)
	if err != nil {
		return nil, fmt.Errorf("list queued verifications: %w", err)
	}
	out := make([]Violation, 0, len(rows))
	for _, cv := range rows {
		out = append(out, Violation{
			Check:       CheckTerminalWithQueuedVerification,
			CandidateID: cv.Candidate.ID,
			Detail: fmt.Sprintf("candidate is %s but verification %s is still QUEUED",
				cv.Candidate.Disposition, cv.Verification.ID),
		})
	}
	return out, nil
}

func (c *Checker) qcQueueCeiling(ctx context.Context, now time.Time) ([]Violation, error) {
	rows, err := c.store.ListCandidatesInDisposition(ctx, lifecycle.DispositionQueuedForQC, now.Add(-c.qcCeiling), c.rowLimit)
	if err != nil {
		return nil, fmt.Errorf("list QUEUED_FOR_QC candidates: %w", err)
	}
	out := make([]Violation, 0, len(rows))
	for _, cand := range rows {
		out = append(out, Violation{
			Check:       CheckQCQueueCeiling,
			CandidateID: cand.ID,
			Detail: fmt.Sprintf("in QUEUED_FOR_QC for %.1fh, ceiling %s",
				now.Sub(cand.UpdatedAt).Hours(), c.qcCeiling),
		})
	}
	return out, nil
}

func (c *Checker) orphanedLabPromotion(ctx context.Context, now time.Time) ([]Violation, error) {
	rows, err := c.store.ListCandidatesWithoutBot(ctx, lifecycle.DispositionSentToLab, now.Add(-c.labOrphanAge), c.rowLimit)
	if err != nil {
		return nil, fmt.Errorf("list SENT_TO_LAB candidates: %w", err)
	}
	out := make([]Violation, 0, len(rows))
	for _, cand := range rows {
		out = append(out, Violation{
			Check:       CheckOrphanedLabPromotion,
			CandidateID: cand.ID,
			Detail: fmt.Sprintf("in SENT_TO_LAB for %.1fh with no created bot",
				now.Sub(cand.UpdatedAt).Hours()),
		})
	}
	return out, nil
}
