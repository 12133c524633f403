// Package transition applies validated state changes to bots and candidates.
//
// Every apply follows the same sequence: load the current state, run the pure
// validator, record an audit entry, then commit with a compare-and-swap keyed
// on the state observed at load time. Two concurrent applies from the same
// observed state cannot both commit; the loser gets CONFLICT.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stagegate/internal/candidate"
	"stagegate/internal/governance"
	"stagegate/internal/lifecycle"
	"stagegate/internal/stage"
	dErrors "stagegate/pkg/domain-errors"
	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/requestcontext"
)

const defaultStoreTimeout = 3 * time.Second

type BotStore interface {
	FindBot(ctx context.Context, id string) (*lifecycle.Bot, error)
	// CompareAndSwapStage sets the stage to next only if it currently equals
	// expected. It returns sentinel.ErrConflict when the precondition fails.
	CompareAndSwapStage(ctx context.Context, id string, expected, next lifecycle.Stage, at time.Time) error
}

type CandidateStore interface {
	FindCandidate(ctx context.Context, id string) (*lifecycle.Candidate, error)
	CompareAndSwapDisposition(ctx context.Context, id string, expected, next lifecycle.Disposition, at time.Time) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, record audit.TransitionRecord) error
}

// BotOptions carries caller context for a bot stage change.
type BotOptions struct {
	IsEmergency bool
	// Approval is verified governance evidence. It only counts when it covers
	// this bot and the CANARY→LIVE edge.
	Approval *governance.Approval
}

// CandidateOptions carries caller context for a disposition change.
type CandidateOptions struct {
	// ExpectedFrom, when set, requires the candidate to currently be in this
	// disposition. A mismatch is CONFLICT and nothing is written.
	ExpectedFrom lifecycle.Disposition
}

// Result describes a successful apply.
type Result struct {
	EntityID         string       `json:"entity_id"`
	Domain           audit.Domain `json:"domain"`
	From             string       `json:"from"`
	To               string       `json:"to"`
	Changed          bool         `json:"changed"`
	Reason           string       `json:"reason"`
	GateRequirements []string     `json:"gate_requirements,omitempty"`
	Approver         string       `json:"approver,omitempty"`
}

// Service orchestrates validated, CAS-guarded transitions.
type Service struct {
	bots           BotStore
	candidates     CandidateStore
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *Metrics
	tracer         trace.Tracer
	storeTimeout   time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func New(bots BotStore, candidates CandidateStore, opts ...Option) (*Service, error) {
	if bots == nil {
		return nil, errors.New("bot store is required")
	}
	if candidates == nil {
		return nil, errors.New("candidate store is required")
	}
	s := &Service{
		bots:         bots,
		candidates:   candidates,
		logger:       slog.New(slog.DiscardHandler),
		tracer:       otel.Tracer("stagegate/transition"),
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ApplyBotStage moves botID to the target stage.
func (s *Service) ApplyBotStage(ctx context.Context, botID string, to lifecycle.Stage, triggeredBy string, opts BotOptions) (*Result, error) {
	const domain = audit.DomainBot
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "transition.ApplyBotStage", trace.WithAttributes(
		attribute.String("bot.id", botID),
		attribute.String("stage.to", string(to)),
		attribute.Bool("emergency", opts.IsEmergency),
	))
	defer span.End()
	defer s.observe(domain, start)

	bot, err := s.findBot(ctx, botID)
	if err != nil {
		err = wrapStoreErr(err, "bot", botID, "load bot")
		s.logStoreErr(ctx, err, domain, botID, "", string(to), triggeredBy)
		s.fail(span, domain, outcomeFor(err), err)
		return nil, err
	}
	from := bot.Stage
	span.SetAttributes(attribute.String("stage.from", string(from)))

	hasApproval := opts.Approval.Covers(botID, from, to)
	d := stage.Validate(from, to, stage.Options{
		IsEmergency:           opts.IsEmergency,
		HasGovernanceApproval: hasApproval,
	})

	record := audit.TransitionRecord{
		EntityID:    botID,
		Domain:      domain,
		From:        string(from),
		To:          string(to),
		Allowed:     d.Allowed,
		Reason:      d.Reason,
		TriggeredBy: triggeredBy,
	}
	if hasApproval {
		record.Approver = opts.Approval.Approver
	}
	s.emit(ctx, record)

	if !d.Allowed {
		if d.RequiresApproval && s.metrics != nil {
			s.metrics.IncApprovalRequired()
		}
		blocked := &BlockedError{
			Code:             d.Code,
			Reason:           d.Reason,
			RequiresApproval: d.RequiresApproval,
			GateRequirements: d.GateRequirements,
		}
		s.logBlocked(ctx, blocked, domain, botID, string(from), string(to), triggeredBy)
		s.fail(span, domain, OutcomeBlocked, blocked)
		return nil, blocked
	}

	result := &Result{
		EntityID:         botID,
		Domain:           domain,
		From:             string(from),
		To:               string(to),
		Reason:           d.Reason,
		GateRequirements: d.GateRequirements,
		Approver:         record.Approver,
	}
	if from == to {
		s.count(domain, OutcomeNoop)
		return result, nil
	}

	if err := s.casStage(ctx, botID, from, to); err != nil {
		err = wrapStoreErr(err, "bot", botID, "update bot stage")
		s.logStoreErr(ctx, err, domain, botID, string(from), string(to), triggeredBy)
		s.fail(span, domain, outcomeFor(err), err)
		return nil, err
	}

	result.Changed = true
	s.count(domain, OutcomeApplied)
	s.logger.InfoContext(ctx, "bot stage changed",
		"bot_id", botID,
		"from", from,
		"to", to,
		"triggered_by", triggeredBy,
		"approver", record.Approver,
		"emergency", opts.IsEmergency,
	)
	return result, nil
}

// ApplyCandidate moves candidateID to the target disposition.
func (s *Service) ApplyCandidate(ctx context.Context, candidateID string, to lifecycle.Disposition, triggeredBy string, opts CandidateOptions) (*Result, error) {
	const domain = audit.DomainCandidate
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "transition.ApplyCandidate", trace.WithAttributes(
		attribute.String("candidate.id", candidateID),
		attribute.String("disposition.to", string(to)),
	))
	defer span.End()
	defer s.observe(domain, start)

	c, err := s.findCandidate(ctx, candidateID)
	if err != nil {
		err = wrapStoreErr(err, "candidate", candidateID, "load candidate")
		s.logStoreErr(ctx, err, domain, candidateID, "", string(to), triggeredBy)
		s.fail(span, domain, outcomeFor(err), err)
		return nil, err
	}
	from := c.Disposition
	span.SetAttributes(attribute.String("disposition.from", string(from)))

	if opts.ExpectedFrom != "" && from != opts.ExpectedFrom {
		err := dErrors.Newf(dErrors.CodeConflict,
			"candidate %s is %s, expected %s", candidateID, from, opts.ExpectedFrom)
		s.logger.InfoContext(ctx, "candidate precondition not met",
			"candidate_id", candidateID,
			"from", from,
			"expected", opts.ExpectedFrom,
			"to", to,
			"triggered_by", triggeredBy,
		)
		s.emit(ctx, audit.TransitionRecord{
			EntityID:    candidateID,
			Domain:      domain,
			From:        string(from),
			To:          string(to),
			Allowed:     false,
			Reason:      fmt.Sprintf("precondition not met: candidate is %s, expected %s", from, opts.ExpectedFrom),
			TriggeredBy: triggeredBy,
		})
		s.fail(span, domain, OutcomeConflict, err)
		return nil, err
	}

	d := candidate.Validate(from, to)
	s.emit(ctx, audit.TransitionRecord{
		EntityID:    candidateID,
		Domain:      domain,
		From:        string(from),
		To:          string(to),
		Allowed:     d.Allowed,
		Reason:      d.Reason,
		TriggeredBy: triggeredBy,
	})

	if !d.Allowed {
		blocked := &BlockedError{Code: d.Code, Reason: d.Reason}
		s.logBlocked(ctx, blocked, domain, candidateID, string(from), string(to), triggeredBy)
		s.fail(span, domain, OutcomeBlocked, blocked)
		return nil, blocked
	}

	result := &Result{
		EntityID: candidateID,
		Domain:   domain,
		From:     string(from),
		To:       string(to),
		Reason:   d.Reason,
	}
	if from == to {
		s.count(domain, OutcomeNoop)
		return result, nil
	}

	if err := s.casDisposition(ctx, candidateID, from, to); err != nil {
		err = wrapStoreErr(err, "candidate", candidateID, "update candidate disposition")
		s.logStoreErr(ctx, err, domain, candidateID, string(from), string(to), triggeredBy)
		s.fail(span, domain, outcomeFor(err), err)
		return nil, err
	}

	result.Changed = true
	s.count(domain, OutcomeApplied)
	s.logger.InfoContext(ctx, "candidate disposition changed",
		"candidate_id", candidateID,
		"from", from,
		"to", to,
		"triggered_by", triggeredBy,
	)
	return result, nil
}

func (s *Service) findBot(ctx context.Context, id string) (*lifecycle.Bot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.bots.FindBot(ctx, id)
}

func (s *Service) casStage(ctx context.Context, id string, expected, next lifecycle.Stage) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.bots.CompareAndSwapStage(ctx, id, expected, next, requestcontext.Now(ctx))
}

func (s *Service) findCandidate(ctx context.Context, id string) (*lifecycle.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.candidates.FindCandidate(ctx, id)
}

func (s *Service) casDisposition(ctx context.Context, id string, expected, next lifecycle.Disposition) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.candidates.CompareAndSwapDisposition(ctx, id, expected, next, requestcontext.Now(ctx))
}

// emit is best-effort: a publisher failure is logged and never fails the
// transition.
func (s *Service) emit(ctx context.Context, record audit.TransitionRecord) {
	if s.auditPublisher == nil {
		return
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.auditPublisher.Emit(ctx, record); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"entity_id", record.EntityID,
			"domain", record.Domain,
			"error", err,
		)
	}
}

func (s *Service) logBlocked(ctx context.Context, be *BlockedError, domain audit.Domain, id, from, to, triggeredBy string) {
	s.logger.WarnContext(ctx, "transition blocked",
		"domain", domain,
		"entity_id", id,
		"from", from,
		"to", to,
		"triggered_by", triggeredBy,
		"timestamp", requestcontext.Now(ctx),
		"code", be.Code,
		"reason", be.Reason,
		"requires_approval", be.RequiresApproval,
	)
}

func (s *Service) logStoreErr(ctx context.Context, err error, domain audit.Domain, id, from, to, triggeredBy string) {
	level := slog.LevelError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound, dErrors.CodeConflict:
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "transition store call failed",
		"domain", domain,
		"entity_id", id,
		"from", from,
		"to", to,
		"triggered_by", triggeredBy,
		"timestamp", requestcontext.Now(ctx),
		"code", dErrors.CodeOf(err),
		"error", err,
	)
}

func (s *Service) fail(span trace.Span, domain audit.Domain, outcome string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	s.count(domain, outcome)
}

func (s *Service) count(domain audit.Domain, outcome string) {
	if s.metrics != nil {
		s.metrics.IncOutcome(string(domain), outcome)
	}
}

func (s *Service) observe(domain audit.Domain, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveApply(string(domain), start)
	}
}
