package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stagegate/internal/lifecycle"
	"stagegate/internal/transition"
	dErrors "stagegate/pkg/domain-errors"
	"stagegate/pkg/requestcontext"
)

// TriggeredBy identifies repairs in the audit trail.
const TriggeredBy = "reconciler"

type Recommendation string

const (
	// MoveToReady is the only recommendation the sweep applies itself.
	MoveToReady Recommendation = "MOVE_TO_READY"
	// MoveToExpired is surfaced for manual review and never applied.
	MoveToExpired Recommendation = "MOVE_TO_EXPIRED"
	ManualReview  Recommendation = "MANUAL_REVIEW"
)

// SLAs are the per-disposition stuck thresholds. Scan order follows the
// field order: QC first, then queued, then pending review.
type SLAs struct {
	QueuedForQC   time.Duration
	Queued        time.Duration
	PendingReview time.Duration
}

func DefaultSLAs() SLAs {
	return SLAs{
		QueuedForQC:   24 * time.Hour,
		Queued:        7 * 24 * time.Hour,
		PendingReview: 30 * 24 * time.Hour,
	}
}

type CandidateLister interface {
	// ListCandidatesInDispositionAfter returns candidates in d last updated
	// before updatedBefore that sort after the key, oldest first.
	ListCandidatesInDispositionAfter(ctx context.Context, d lifecycle.Disposition, updatedBefore time.Time, after lifecycle.CandidateKey, limit int) ([]lifecycle.Candidate, error)
	ListVerifiedNotAdvanced(ctx context.Context, dispositions []lifecycle.Disposition, limit int) ([]lifecycle.CandidateVerification, error)
}

// Applier is the CAS-guarded transition path. *transition.Service satisfies it.
type Applier interface {
	ApplyCandidate(ctx context.Context, candidateID string, to lifecycle.Disposition, triggeredBy string, opts transition.CandidateOptions) (*transition.Result, error)
}

type StuckCandidate struct {
	CandidateID        string                `json:"candidate_id"`
	Disposition        lifecycle.Disposition `json:"disposition"`
	UpdatedAt          time.Time             `json:"updated_at"`
	StuckDurationHours float64               `json:"stuck_duration_hours"`
	Recommendation     Recommendation        `json:"recommendation"`
}

// EntityError is a per-candidate failure collected instead of aborting the
// pass.
type EntityError struct {
	CandidateID string       `json:"candidate_id"`
	Code        dErrors.Code `json:"code"`
	Message     string       `json:"message"`
}

// QueryError is a failed lookup that does not invalidate the rest of the
// pass.
type QueryError struct {
	Query   string       `json:"query"`
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
}

type VerifiedCandidate struct {
	CandidateID    string                `json:"candidate_id"`
	Disposition    lifecycle.Disposition `json:"disposition"`
	VerificationID string                `json:"verification_id"`
}

type CandidateReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	DryRun      bool             `json:"dry_run"`
	Stuck       []StuckCandidate `json:"stuck"`
	Repaired    int              `json:"repaired"`
	Skipped     int              `json:"skipped"`
	// ManualReview lists every stuck candidate the sweep will not touch.
	ManualReview        []StuckCandidate    `json:"manual_review"`
	Errors              []EntityError       `json:"errors"`
	QueryErrors         []QueryError        `json:"query_errors"`
	Deferred            bool                `json:"deferred"`
	VerifiedNotAdvanced []VerifiedCandidate `json:"verified_not_advanced"`
}

// CandidateReconciler remembers, per mode, where each disposition's scan
// stopped. Dry-run passes never move the live cursor.
type CandidateReconciler struct {
	store        CandidateLister
	applier      Applier
	slas         SLAs
	rowBudget    int
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer

	mu      sync.Mutex
	cursors map[bool]scanCursor
}

// scanCursor is one cycle over the dispositions. A disposition is done once
// a pass reads it to the end; the cycle restarts after a pass that defers
// nothing.
type scanCursor struct {
	keys map[lifecycle.Disposition]lifecycle.CandidateKey
	done map[lifecycle.Disposition]bool
}

func newScanCursor() scanCursor {
	return scanCursor{
		keys: map[lifecycle.Disposition]lifecycle.CandidateKey{},
		done: map[lifecycle.Disposition]bool{},
	}
}

func (c scanCursor) clone() scanCursor {
	out := newScanCursor()
	for d, k := range c.keys {
		out.keys[d] = k
	}
	for d, v := range c.done {
		out.done[d] = v
	}
	return out
}

type CandidateOption func(*CandidateReconciler)

func WithLogger(logger *slog.Logger) CandidateOption {
	return func(r *CandidateReconciler) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) CandidateOption {
	return func(r *CandidateReconciler) {
		r.metrics = m
	}
}

func WithSLAs(slas SLAs) CandidateOption {
	return func(r *CandidateReconciler) {
		r.slas = slas
	}
}

func WithRowBudget(n int) CandidateOption {
	return func(r *CandidateReconciler) {
		if n > 0 {
			r.rowBudget = n
		}
	}
}

// WithStoreTimeout bounds each list call of a pass.
func WithStoreTimeout(d time.Duration) CandidateOption {
	return func(r *CandidateReconciler) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

func NewCandidateReconciler(store CandidateLister, applier Applier, opts ...CandidateOption) (*CandidateReconciler, error) {
	if store == nil {
		return nil, errors.New("candidate store is required")
	}
	if applier == nil {
		return nil, errors.New("applier is required")
	}
	r := &CandidateReconciler{
		store:        store,
		applier:      applier,
		slas:         DefaultSLAs(),
		rowBudget:    DefaultRowBudget,
		storeTimeout: DefaultStoreTimeout,
		logger:       slog.New(slog.DiscardHandler),
		tracer:       otel.Tracer("stagegate/reconcile"),
		cursors:      map[bool]scanCursor{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type scanTarget struct {
	disposition lifecycle.Disposition
	sla         time.Duration
}

func (r *CandidateReconciler) targets() []scanTarget {
	return []scanTarget{
		{lifecycle.DispositionQueuedForQC, r.slas.QueuedForQC},
		{lifecycle.DispositionQueued, r.slas.Queued},
		{lifecycle.DispositionPendingReview, r.slas.PendingReview},
	}
}

// Reconcile scans stuck candidates oldest first within each disposition,
// up to the row budget for the whole pass, resuming where the previous pass
// in the same mode deferred. With dryRun=false, MOVE_TO_READY candidates are
// advanced with ExpectedFrom=QUEUED_FOR_QC. A failed stuck scan aborts the
// pass before anything is written; every other failure lands in the report.
func (r *CandidateReconciler) Reconcile(ctx context.Context, dryRun bool) (*CandidateReport, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "reconcile.Candidates", trace.WithAttributes(
		attribute.Bool("reconcile.dry_run", dryRun),
	))
	defer span.End()
	if r.metrics != nil {
		defer r.metrics.ObserveSweep(sweepCandidate, start)
	}

	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)
	report := &CandidateReport{
		GeneratedAt:         now,
		DryRun:              dryRun,
		Stuck:               []StuckCandidate{},
		ManualReview:        []StuckCandidate{},
		Errors:              []EntityError{},
		QueryErrors:         []QueryError{},
		VerifiedNotAdvanced: []VerifiedCandidate{},
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cursor, ok := r.cursors[dryRun]
	if !ok {
		cursor = newScanCursor()
	}
	cursor = cursor.clone()
	stuck, deferred, err := r.scan(ctx, now, cursor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return nil, err
	}
	if deferred {
		r.cursors[dryRun] = cursor
	} else {
		delete(r.cursors, dryRun)
	}
	report.Stuck = append(report.Stuck, stuck...)
	report.Deferred = deferred
	if deferred && r.metrics != nil {
		r.metrics.IncDeferred(sweepCandidate)
	}

	verified, err := r.listVerified(ctx)
	if err != nil {
		span.RecordError(err)
		err = storeErr(err, "list verified candidates")
		report.QueryErrors = append(report.QueryErrors, QueryError{
			Query:   "verified_not_advanced",
			Code:    dErrors.CodeOf(err),
			Message: err.Error(),
		})
		r.logger.ErrorContext(ctx, "verified candidate lookup failed, continuing",
			"dry_run", dryRun,
			"error", err,
		)
	}
	for _, cv := range verified {
		report.VerifiedNotAdvanced = append(report.VerifiedNotAdvanced, VerifiedCandidate{
			CandidateID:    cv.Candidate.ID,
			Disposition:    cv.Candidate.Disposition,
			VerificationID: cv.Verification.ID,
		})
	}

	for _, sc := range stuck {
		if r.metrics != nil {
			r.metrics.IncFinding(sweepCandidate, string(sc.Recommendation))
		}
		if sc.Recommendation != MoveToReady {
			report.ManualReview = append(report.ManualReview, sc)
			continue
		}
		if dryRun {
			continue
		}
		r.repair(ctx, sc, report)
	}

	span.SetAttributes(
		attribute.Int("reconcile.stuck", len(report.Stuck)),
		attribute.Int("reconcile.repaired", report.Repaired),
		attribute.Bool("reconcile.deferred", report.Deferred),
	)
	r.logger.InfoContext(ctx, "candidate reconcile complete",
		"dry_run", dryRun,
		"stuck", len(report.Stuck),
		"repaired", report.Repaired,
		"skipped", report.Skipped,
		"manual_review", len(report.ManualReview),
		"errors", len(report.Errors),
		"query_errors", len(report.QueryErrors),
		"deferred", report.Deferred,
		"verified_not_advanced", len(report.VerifiedNotAdvanced),
	)
	return report, nil
}

// scan spends the row budget across dispositions in priority order,
// skipping those already finished this cycle and resuming each from its
// key. Each list asks for one extra row so a full budget can tell whether
// anything was left behind. cursor is updated in place.
func (r *CandidateReconciler) scan(ctx context.Context, now time.Time, cursor scanCursor) ([]StuckCandidate, bool, error) {
	remaining := r.rowBudget
	deferred := false
	var stuck []StuckCandidate

	for _, t := range r.targets() {
		if cursor.done[t.disposition] {
			continue
		}
		limit := remaining + 1
		if remaining == 0 {
			limit = 1
		}
		rows, err := r.listStuck(ctx, t, now, cursor.keys[t.disposition], limit)
		if err != nil {
			return nil, false, storeErr(err, "list "+string(t.disposition)+" candidates")
		}
		if len(rows) > remaining {
			rows = rows[:remaining]
			deferred = true
			if len(rows) > 0 {
				cursor.keys[t.disposition] = lifecycle.KeyOf(rows[len(rows)-1])
			}
		} else {
			cursor.done[t.disposition] = true
		}
		for _, c := range rows {
			stuck = append(stuck, r.slas.classify(c, now))
		}
		remaining -= len(rows)
	}
	return stuck, deferred, nil
}

func (r *CandidateReconciler) listStuck(ctx context.Context, t scanTarget, now time.Time, after lifecycle.CandidateKey, limit int) ([]lifecycle.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.store.ListCandidatesInDispositionAfter(ctx, t.disposition, now.Add(-t.sla), after, limit)
}

func (r *CandidateReconciler) listVerified(ctx context.Context) ([]lifecycle.CandidateVerification, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.store.ListVerifiedNotAdvanced(ctx, []lifecycle.Disposition{
		lifecycle.DispositionPendingReview,
		lifecycle.DispositionQueued,
		lifecycle.DispositionQueuedForQC,
	}, r.rowBudget)
}

func (s SLAs) classify(c lifecycle.Candidate, now time.Time) StuckCandidate {
	stuckFor := now.Sub(c.UpdatedAt)
	return StuckCandidate{
		CandidateID:        c.ID,
		Disposition:        c.Disposition,
		UpdatedAt:          c.UpdatedAt,
		StuckDurationHours: math.Round(stuckFor.Hours()*10) / 10,
		Recommendation:     s.Recommend(c.Disposition, stuckFor),
	}
}

// Recommend maps a disposition and how long it has been stuck to a
// recommendation. With default SLAs that is QUEUED_FOR_QC past 24h to
// MOVE_TO_READY and QUEUED past 168h to MOVE_TO_EXPIRED.
func (s SLAs) Recommend(d lifecycle.Disposition, stuckFor time.Duration) Recommendation {
	switch {
	case d == lifecycle.DispositionQueuedForQC && stuckFor > s.QueuedForQC:
		return MoveToReady
	case d == lifecycle.DispositionQueued && stuckFor > s.Queued:
		return MoveToExpired
	default:
		return ManualReview
	}
}

func (r *CandidateReconciler) repair(ctx context.Context, sc StuckCandidate, report *CandidateReport) {
	_, err := r.applier.ApplyCandidate(ctx, sc.CandidateID, lifecycle.DispositionReady, TriggeredBy,
		transition.CandidateOptions{ExpectedFrom: lifecycle.DispositionQueuedForQC})
	switch {
	case err == nil:
		report.Repaired++
		if r.metrics != nil {
			r.metrics.IncRepaired()
		}
	case dErrors.HasCode(err, dErrors.CodeConflict):
		report.Skipped++
		if r.metrics != nil {
			r.metrics.IncSkipped()
		}
		r.logger.InfoContext(ctx, "repair skipped, candidate changed concurrently",
			"candidate_id", sc.CandidateID,
		)
	default:
		report.Errors = append(report.Errors, EntityError{
			CandidateID: sc.CandidateID,
			Code:        dErrors.CodeOf(err),
			Message:     err.Error(),
		})
		if r.metrics != nil {
			r.metrics.IncEntityError(sweepCandidate)
		}
		r.logger.ErrorContext(ctx, "repair failed",
			"candidate_id", sc.CandidateID,
			"from", sc.Disposition,
			"to", lifecycle.DispositionReady,
			"error", err,
		)
	}
}
