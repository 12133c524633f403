// Package httptransport exposes validation, transitions, sweeps and the audit
// trail over HTTP. Handlers decode, delegate and encode; decisions live in
// the domain packages.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stagegate/internal/candidate"
	"stagegate/internal/governance"
	"stagegate/internal/invariant"
	"stagegate/internal/lifecycle"
	"stagegate/internal/reconcile"
	"stagegate/internal/stage"
	"stagegate/internal/transition"
	dErrors "stagegate/pkg/domain-errors"
	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/platform/httputil"
	"stagegate/pkg/platform/middleware/admin"
	"stagegate/pkg/requestcontext"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
	// defaultTriggeredBy is recorded when neither the body nor X-Actor names
	// the caller.
	defaultTriggeredBy = "api"
)

type Transitioner interface {
	ApplyBotStage(ctx context.Context, botID string, to lifecycle.Stage, triggeredBy string, opts transition.BotOptions) (*transition.Result, error)
	ApplyCandidate(ctx context.Context, candidateID string, to lifecycle.Disposition, triggeredBy string, opts transition.CandidateOptions) (*transition.Result, error)
}

type StageReconciler interface {
	Reconcile(ctx context.Context) (*reconcile.StageReport, error)
}

type CandidateReconciler interface {
	Reconcile(ctx context.Context, dryRun bool) (*reconcile.CandidateReport, error)
}

type InvariantChecker interface {
	Check(ctx context.Context) *invariant.Report
}

// AuditReader serves recent records from the in-process log.
type AuditReader interface {
	Recent(limit int) []audit.TransitionRecord
	ForEntity(entityID string, limit int) []audit.TransitionRecord
}

type ApprovalVerifier interface {
	Verify(token, botID string) (*governance.Approval, error)
}

// Services groups the handler's collaborators. Approvals may be nil, in which
// case approval tokens are refused.
type Services struct {
	Transitions Transitioner
	Stages      StageReconciler
	Candidates  CandidateReconciler
	Invariants  InvariantChecker
	Audit       AuditReader
	Approvals   ApprovalVerifier
}

type Handler struct {
	svc           Services
	logger        *slog.Logger
	operatorToken string
}

func New(svc Services, logger *slog.Logger, operatorToken string) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, logger: logger, operatorToken: operatorToken}
}

// Register mounts the v1 API. Mutating routes require the operator token
// when one is configured.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/stages/validate", h.HandleValidateStage)
		r.Post("/candidates/validate", h.HandleValidateCandidate)
		r.Get("/reconcile/stages", h.HandleReconcileStages)
		r.Get("/invariants", h.HandleInvariants)
		r.Get("/audit/transitions", h.HandleAuditTransitions)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireOperatorToken(h.operatorToken, h.logger))
			r.Post("/bots/{botID}/transitions", h.HandleBotTransition)
			r.Post("/candidates/{candidateID}/transitions", h.HandleCandidateTransition)
			r.Post("/reconcile/candidates", h.HandleReconcileCandidates)
		})
	})
}

// HandleValidateStage previews a stage edge without touching state.
func (h *Handler) HandleValidateStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ValidateStageRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d := stage.Validate(req.from, req.to, stage.Options{
		IsEmergency:           req.IsEmergency,
		HasGovernanceApproval: req.HasGovernanceApproval,
	})
	httputil.WriteJSON(w, http.StatusOK, ValidationResponse{
		Allowed:          d.Allowed,
		Reason:           d.Reason,
		RequiresApproval: d.RequiresApproval,
		GateRequirements: d.GateRequirements,
		Code:             string(d.Code),
	})
}

func (h *Handler) HandleValidateCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ValidateCandidateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d := candidate.Validate(req.from, req.to)
	httputil.WriteJSON(w, http.StatusOK, ValidationResponse{
		Allowed: d.Allowed,
		Reason:  d.Reason,
		Code:    string(d.Code),
	})
}

// HandleBotTransition handles POST /v1/bots/{botID}/transitions.
func (h *Handler) HandleBotTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()
	botID := chi.URLParam(r, "botID")

	req, ok := httputil.DecodeAndPrepare[BotTransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	opts := transition.BotOptions{IsEmergency: req.IsEmergency}
	if req.ApprovalToken != "" {
		if h.svc.Approvals == nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeGovernanceRequired, "approval verification is not configured"))
			return
		}
		approval, err := h.svc.Approvals.Verify(req.ApprovalToken, botID)
		if err != nil {
			h.logger.WarnContext(ctx, "approval rejected",
				"request_id", requestID,
				"bot_id", botID,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		opts.Approval = approval
	}

	triggeredBy := h.triggeredBy(ctx, req.TriggeredBy)
	result, err := h.svc.Transitions.ApplyBotStage(ctx, botID, req.to, triggeredBy, opts)
	if err != nil {
		h.logger.InfoContext(ctx, "bot transition refused",
			"request_id", requestID,
			"bot_id", botID,
			"to", req.to,
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "bot transition applied",
		"request_id", requestID,
		"bot_id", botID,
		"from", result.From,
		"to", result.To,
		"changed", result.Changed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleCandidateTransition handles POST /v1/candidates/{candidateID}/transitions.
func (h *Handler) HandleCandidateTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	candidateID := chi.URLParam(r, "candidateID")

	req, ok := httputil.DecodeAndPrepare[CandidateTransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.svc.Transitions.ApplyCandidate(ctx, candidateID, req.to,
		h.triggeredBy(ctx, req.TriggeredBy),
		transition.CandidateOptions{ExpectedFrom: req.expectedFrom})
	if err != nil {
		h.logger.InfoContext(ctx, "candidate transition refused",
			"request_id", requestID,
			"candidate_id", candidateID,
			"to", req.to,
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleReconcileStages(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Stages.Reconcile(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stage reconcile failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleReconcileCandidates runs one candidate sweep. dry_run defaults to
// true; repairs happen only for an explicit dry_run=false.
func (h *Handler) HandleReconcileCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dryRun := true
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "dry_run must be a boolean"))
			return
		}
		dryRun = v
	}

	report, err := h.svc.Candidates.Reconcile(ctx, dryRun)
	if err != nil {
		h.logger.ErrorContext(ctx, "candidate reconcile failed", "dry_run", dryRun, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleInvariants(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.svc.Invariants.Check(r.Context()))
}

// HandleAuditTransitions handles GET /v1/audit/transitions?entity_id=&limit=.
func (h *Handler) HandleAuditTransitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultAuditLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxAuditLimit)
	}

	var records []audit.TransitionRecord
	if entityID := strings.TrimSpace(q.Get("entity_id")); entityID != "" {
		records = h.svc.Audit.ForEntity(entityID, limit)
	} else {
		records = h.svc.Audit.Recent(limit)
	}
	httputil.WriteJSON(w, http.StatusOK, AuditResponse{Records: records, Count: len(records)})
}

func (h *Handler) triggeredBy(ctx context.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if actor := requestcontext.Actor(ctx); actor != "" {
		return actor
	}
	return defaultTriggeredBy
}
