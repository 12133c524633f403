// Package reconcile detects drift between recorded lifecycle state and what
// the rest of the system reports, and repairs the one safe case.
//
// StageReconciler is read-only. CandidateReconciler auto-applies only
// QUEUED_FOR_QC → READY, through the same compare-and-swap path as any
// other transition, and only when not in dry-run mode.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stagegate/internal/lifecycle"
	dErrors "stagegate/pkg/domain-errors"
	"stagegate/pkg/platform/sentinel"
	"stagegate/pkg/requestcontext"
)

const (
	DefaultRowBudget    = 100
	DefaultStoreTimeout = 3 * time.Second

	sweepStage     = "stage"
	sweepCandidate = "candidate"
)

// Stage drift issues.
const (
	IssueStageMismatch  = "STAGE_MISMATCH"
	IssueMissingProcess = "MISSING_PROCESS"
)

const (
	RecommendResync             = "resync by restarting the process"
	RecommendInvestigateProcess = "investigate missing process"
)

type BotRunnerLister interface {
	// ListBotsWithRunners returns bots with IDs after afterID in ID order.
	ListBotsWithRunners(ctx context.Context, afterID string, limit int) ([]lifecycle.BotRunner, error)
}

// StageFinding describes one bot whose recorded stage disagrees with its
// process record.
type StageFinding struct {
	BotID          string          `json:"bot_id"`
	BotStage       lifecycle.Stage `json:"bot_stage"`
	RunnerStage    lifecycle.Stage `json:"runner_stage,omitempty"`
	Issues         []string        `json:"issues"`
	Recommendation string          `json:"recommendation"`
}

type StageReport struct {
	GeneratedAt  time.Time      `json:"generated_at"`
	ResumedAfter string         `json:"resumed_after,omitempty"`
	Scanned      int            `json:"scanned"`
	Deferred     bool           `json:"deferred"`
	Findings     []StageFinding `json:"findings"`
}

// StageReconciler keeps a cursor between passes so a deferred pass is
// picked up by the next one instead of rescanning the same head rows.
type StageReconciler struct {
	store        BotRunnerLister
	rowBudget    int
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer

	mu     sync.Mutex
	cursor string
}

type StageOption func(*StageReconciler)

func WithStageLogger(logger *slog.Logger) StageOption {
	return func(r *StageReconciler) {
		r.logger = logger
	}
}

func WithStageMetrics(m *Metrics) StageOption {
	return func(r *StageReconciler) {
		r.metrics = m
	}
}

func WithStageRowBudget(n int) StageOption {
	return func(r *StageReconciler) {
		if n > 0 {
			r.rowBudget = n
		}
	}
}

// WithStageStoreTimeout bounds the list call of each pass.
func WithStageStoreTimeout(d time.Duration) StageOption {
	return func(r *StageReconciler) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

func NewStageReconciler(store BotRunnerLister, opts ...StageOption) (*StageReconciler, error) {
	if store == nil {
		return nil, errors.New("bot runner store is required")
	}
	r := &StageReconciler{
		store:        store,
		rowBudget:    DefaultRowBudget,
		storeTimeout: DefaultStoreTimeout,
		logger:       slog.New(slog.DiscardHandler),
		tracer:       otel.Tracer("stagegate/reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reconcile scans up to the row budget of bots and reports drift. It never
// writes. A deferred pass leaves the cursor on the last bot scanned; a pass
// that reaches the end of the table resets it.
func (r *StageReconciler) Reconcile(ctx context.Context) (*StageReport, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "reconcile.Stages")
	defer span.End()
	if r.metrics != nil {
		defer r.metrics.ObserveSweep(sweepStage, start)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.listBots(ctx, r.cursor)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr(err, "list bots with runners")
	}

	report := &StageReport{
		GeneratedAt:  requestcontext.Now(ctx),
		ResumedAfter: r.cursor,
		Findings:     []StageFinding{},
	}
	if len(rows) > r.rowBudget {
		rows = rows[:r.rowBudget]
		report.Deferred = true
		if r.metrics != nil {
			r.metrics.IncDeferred(sweepStage)
		}
	}
	report.Scanned = len(rows)
	if report.Deferred {
		r.cursor = rows[len(rows)-1].Bot.ID
	} else {
		r.cursor = ""
	}

	for _, row := range rows {
		finding, ok := inspectBot(row)
		if !ok {
			continue
		}
		report.Findings = append(report.Findings, finding)
		if r.metrics != nil {
			for _, issue := range finding.Issues {
				r.metrics.IncFinding(sweepStage, issue)
			}
		}
		r.logger.WarnContext(ctx, "stage drift detected",
			"bot_id", finding.BotID,
			"bot_stage", finding.BotStage,
			"runner_stage", finding.RunnerStage,
			"issues", finding.Issues,
		)
	}

	span.SetAttributes(
		attribute.Int("reconcile.scanned", report.Scanned),
		attribute.Int("reconcile.findings", len(report.Findings)),
		attribute.Bool("reconcile.deferred", report.Deferred),
	)
	r.logger.InfoContext(ctx, "stage reconcile complete",
		"scanned", report.Scanned,
		"findings", len(report.Findings),
		"deferred", report.Deferred,
		"resumed_after", report.ResumedAfter,
	)
	return report, nil
}

func (r *StageReconciler) listBots(ctx context.Context, afterID string) ([]lifecycle.BotRunner, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.store.ListBotsWithRunners(ctx, afterID, r.rowBudget+1)
}

// inspectBot applies the two drift rules. A bot in TRIALS or KILLED is
// allowed to have no running process.
func inspectBot(row lifecycle.BotRunner) (StageFinding, bool) {
	bot := row.Bot
	f := StageFinding{BotID: bot.ID, BotStage: bot.Stage}

	hasActive := row.Runner != nil && row.Runner.Active
	missing := !hasActive && bot.Stage != lifecycle.StageTrials && bot.Stage != lifecycle.StageKilled
	if row.Runner != nil {
		f.RunnerStage = row.Runner.Stage
		if row.Runner.Stage != bot.Stage {
			f.Issues = append(f.Issues, IssueStageMismatch)
		}
	}
	if missing {
		f.Issues = append(f.Issues, IssueMissingProcess)
	}

	switch {
	case len(f.Issues) == 0:
		return f, false
	case missing:
		f.Recommendation = RecommendInvestigateProcess
	default:
		f.Recommendation = RecommendResync
	}
	return f, true
}

func storeErr(err error, op string) error {
	if errors.Is(err, sentinel.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, fmt.Sprintf("%s timed out", op))
	}
	return dErrors.Wrap(err, dErrors.CodeStoreError, fmt.Sprintf("%s failed", op))
}
