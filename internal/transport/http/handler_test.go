package httptransport

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Transitioner,CandidateReconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"stagegate/internal/governance"
	"stagegate/internal/invariant"
	"stagegate/internal/lifecycle"
	"stagegate/internal/reconcile"
	"stagegate/internal/store/memory"
	"stagegate/internal/transition"
	"stagegate/internal/transport/http/mocks"
	dErrors "stagegate/pkg/domain-errors"
	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/platform/audit/publisher"
	"stagegate/pkg/platform/httputil"
	"stagegate/pkg/platform/middleware/admin"
	"stagegate/pkg/platform/middleware/metadata"
	"stagegate/pkg/platform/sentinel"
)

const (
	operatorToken = "op-token"
	signingKey    = "governance-test-key"
	issuerName    = "governance"
)

type HandlerSuite struct {
	suite.Suite
	store     *memory.Store
	publisher *publisher.Publisher
	issuer    *governance.Issuer
	router    http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = memory.New()
	s.publisher = publisher.New(audit.NewLog(100), nil)
	s.issuer = governance.NewIssuer(signingKey, issuerName)

	svc, err := transition.New(s.store, s.store,
		transition.WithAuditPublisher(s.publisher),
		transition.WithMetrics(transition.NewMetrics(prometheus.NewRegistry())),
	)
	s.Require().NoError(err)
	stages, err := reconcile.NewStageReconciler(s.store)
	s.Require().NoError(err)
	candidates, err := reconcile.NewCandidateReconciler(s.store, svc)
	s.Require().NoError(err)
	checker, err := invariant.New(s.store)
	s.Require().NoError(err)

	h := New(Services{
		Transitions: svc,
		Stages:      stages,
		Candidates:  candidates,
		Invariants:  checker,
		Audit:       s.publisher,
		Approvals:   governance.NewVerifier(signingKey, issuerName),
	}, nil, operatorToken)
	s.router = NewRouter(h, RouterConfig{Gatherer: prometheus.NewRegistry()})
}

func (s *HandlerSuite) TearDownTest() {
	s.Require().NoError(s.publisher.Close())
}

func (s *HandlerSuite) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) operator(method, path string, body any) *httptest.ResponseRecorder {
	return s.do(method, path, body, admin.HeaderOperatorToken, operatorToken)
}

func (s *HandlerSuite) saveBot(id string, st lifecycle.Stage) {
	s.Require().NoError(s.store.SaveBot(context.Background(), lifecycle.Bot{ID: id, Stage: st, StageUpdatedAt: time.Now()}))
}

func (s *HandlerSuite) botStage(id string) lifecycle.Stage {
	bot, err := s.store.FindBot(context.Background(), id)
	s.Require().NoError(err)
	return bot.Stage
}

func decode[T any](s *HandlerSuite, rec *httptest.ResponseRecorder) T {
	var out T
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func (s *HandlerSuite) TestValidateStage() {
	s.Run("skipping a stage names the next one", func() {
		rec := s.do(http.MethodPost, "/v1/stages/validate", map[string]any{"from": "TRIALS", "to": "SHADOW"})
		s.Equal(http.StatusOK, rec.Code)
		resp := decode[ValidationResponse](s, rec)
		s.False(resp.Allowed)
		s.Contains(resp.Reason, "PAPER")
		s.Equal(string(dErrors.CodeValidationRejected), resp.Code)
	})

	s.Run("canary to live asks for approval", func() {
		rec := s.do(http.MethodPost, "/v1/stages/validate", map[string]any{"from": "canary", "to": "live"})
		resp := decode[ValidationResponse](s, rec)
		s.False(resp.Allowed)
		s.True(resp.RequiresApproval)
	})

	s.Run("unknown stage is a bad request", func() {
		rec := s.do(http.MethodPost, "/v1/stages/validate", map[string]any{"from": "TRIALS", "to": "MOON"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestValidateCandidate() {
	rec := s.do(http.MethodPost, "/v1/candidates/validate", map[string]any{"from": "MERGED", "to": "QUEUED"})
	s.Equal(http.StatusOK, rec.Code)
	resp := decode[ValidationResponse](s, rec)
	s.False(resp.Allowed)
	s.Equal(string(dErrors.CodeTerminalState), resp.Code)
}

func (s *HandlerSuite) TestBotTransitionRequiresOperatorToken() {
	s.saveBot("bot-1", lifecycle.StageTrials)
	rec := s.do(http.MethodPost, "/v1/bots/bot-1/transitions", map[string]any{"to": "PAPER"})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal(lifecycle.StageTrials, s.botStage("bot-1"))
}

func (s *HandlerSuite) TestBotTransitionPromotes() {
	s.saveBot("bot-1", lifecycle.StageTrials)

	rec := s.do(http.MethodPost, "/v1/bots/bot-1/transitions",
		map[string]any{"to": "PAPER"},
		admin.HeaderOperatorToken, operatorToken,
		metadata.HeaderActor, "desk-ops",
	)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	result := decode[transition.Result](s, rec)
	s.True(result.Changed)
	s.Equal(lifecycle.StagePaper, s.botStage("bot-1"))

	records := s.publisher.ForEntity("bot-1", 10)
	s.Require().Len(records, 1)
	s.Equal("desk-ops", records[0].TriggeredBy)
	s.NotEmpty(records[0].RequestID)
}

func (s *HandlerSuite) TestCanaryToLiveNeedsApproval() {
	s.saveBot("bot-9", lifecycle.StageCanary)

	rec := s.operator(http.MethodPost, "/v1/bots/bot-9/transitions", map[string]any{"to": "LIVE"})
	s.Equal(http.StatusForbidden, rec.Code)
	body := decode[httputil.ErrorResponse](s, rec)
	s.Equal(string(dErrors.CodeGovernanceRequired), body.Error)
	s.True(body.RequiresApproval)
	s.Equal(lifecycle.StageCanary, s.botStage("bot-9"))

	token, err := s.issuer.Issue("bot-9", "risk-officer", lifecycle.StageCanary, lifecycle.StageLive, time.Hour)
	s.Require().NoError(err)
	rec = s.operator(http.MethodPost, "/v1/bots/bot-9/transitions", map[string]any{"to": "LIVE", "approval_token": token})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("risk-officer", decode[transition.Result](s, rec).Approver)
	s.Equal(lifecycle.StageLive, s.botStage("bot-9"))
}

func (s *HandlerSuite) TestApprovalForAnotherBotIsRefused() {
	s.saveBot("bot-9", lifecycle.StageCanary)
	token, err := s.issuer.Issue("bot-7", "risk-officer", lifecycle.StageCanary, lifecycle.StageLive, time.Hour)
	s.Require().NoError(err)

	rec := s.operator(http.MethodPost, "/v1/bots/bot-9/transitions", map[string]any{"to": "LIVE", "approval_token": token})
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal(lifecycle.StageCanary, s.botStage("bot-9"))
}

func (s *HandlerSuite) TestBotTransitionErrors() {
	s.saveBot("bot-dead", lifecycle.StageKilled)

	rec := s.operator(http.MethodPost, "/v1/bots/missing/transitions", map[string]any{"to": "PAPER"})
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.operator(http.MethodPost, "/v1/bots/bot-dead/transitions", map[string]any{"to": "TRIALS"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal(string(dErrors.CodeTerminalState), decode[httputil.ErrorResponse](s, rec).Error)
}

func (s *HandlerSuite) TestCandidateTransition() {
	s.Require().NoError(s.store.SaveCandidate(context.Background(), lifecycle.Candidate{
		ID: "c-1", Disposition: lifecycle.DispositionQueuedForQC, UpdatedAt: time.Now(),
	}))

	rec := s.operator(http.MethodPost, "/v1/candidates/c-1/transitions",
		map[string]any{"to": "READY", "expected_from": "QUEUED"})
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.operator(http.MethodPost, "/v1/candidates/c-1/transitions",
		map[string]any{"to": "READY", "expected_from": "QUEUED_FOR_QC"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(string(lifecycle.DispositionReady), decode[transition.Result](s, rec).To)
}

func (s *HandlerSuite) TestReconcileCandidatesDefaultsToDryRun() {
	s.Require().NoError(s.store.SaveCandidate(context.Background(), lifecycle.Candidate{
		ID: "c-stuck", Disposition: lifecycle.DispositionQueuedForQC, UpdatedAt: time.Now().Add(-30 * time.Hour),
	}))

	rec := s.operator(http.MethodPost, "/v1/reconcile/candidates", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	report := decode[reconcile.CandidateReport](s, rec)
	s.True(report.DryRun)
	s.Zero(report.Repaired)
	s.Len(report.Stuck, 1)

	rec = s.operator(http.MethodPost, "/v1/reconcile/candidates?dry_run=false", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(1, decode[reconcile.CandidateReport](s, rec).Repaired)

	rec = s.operator(http.MethodPost, "/v1/reconcile/candidates?dry_run=maybe", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestReconcileStages() {
	s.saveBot("bot-1", lifecycle.StagePaper)

	rec := s.do(http.MethodGet, "/v1/reconcile/stages", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	report := decode[reconcile.StageReport](s, rec)
	s.Require().Len(report.Findings, 1)
	s.Equal(reconcile.RecommendInvestigateProcess, report.Findings[0].Recommendation)
}

func (s *HandlerSuite) TestInvariants() {
	rec := s.do(http.MethodGet, "/v1/invariants", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.True(decode[invariant.Report](s, rec).Passed)
}

func (s *HandlerSuite) TestAuditTransitions() {
	s.saveBot("bot-1", lifecycle.StageTrials)
	s.saveBot("bot-2", lifecycle.StageTrials)
	s.operator(http.MethodPost, "/v1/bots/bot-1/transitions", map[string]any{"to": "PAPER"})
	s.operator(http.MethodPost, "/v1/bots/bot-2/transitions", map[string]any{"to": "SHADOW"})

	rec := s.do(http.MethodGet, "/v1/audit/transitions", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	all := decode[AuditResponse](s, rec)
	s.Equal(2, all.Count)
	s.Equal("bot-2", all.Records[0].EntityID, "newest first")
	s.False(all.Records[0].Allowed)

	rec = s.do(http.MethodGet, "/v1/audit/transitions?entity_id=bot-1&limit=5", nil)
	byEntity := decode[AuditResponse](s, rec)
	s.Require().Equal(1, byEntity.Count)
	s.True(byEntity.Records[0].Allowed)

	rec = s.do(http.MethodGet, "/v1/audit/transitions?limit=-1", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func TestTransportErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   dErrors.Code
	}{
		{"timeout", dErrors.Wrap(context.DeadlineExceeded, dErrors.CodeTimeout, "find bot timed out"), http.StatusGatewayTimeout, dErrors.CodeTimeout},
		{"store error", dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeStoreError, "find bot failed"), http.StatusServiceUnavailable, dErrors.CodeStoreError},
		{"conflict", dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "bot changed"), http.StatusConflict, dErrors.CodeConflict},
		{"uncoded", errors.New("boom"), http.StatusInternalServerError, dErrors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			transitions := mocks.NewMockTransitioner(ctrl)
			transitions.EXPECT().
				ApplyBotStage(gomock.Any(), "bot-1", lifecycle.StagePaper, defaultTriggeredBy, transition.BotOptions{}).
				Return(nil, tt.err)

			router := NewRouter(New(Services{Transitions: transitions}, nil, ""), RouterConfig{Gatherer: prometheus.NewRegistry()})
			req := httptest.NewRequest(http.MethodPost, "/v1/bots/bot-1/transitions", bytes.NewBufferString(`{"to":"paper"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var body httputil.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, string(tt.code), body.Error)
		})
	}
}

func TestReconcileCandidatesPassesDryRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	candidates := mocks.NewMockCandidateReconciler(ctrl)
	candidates.EXPECT().Reconcile(gomock.Any(), false).Return(&reconcile.CandidateReport{Repaired: 2}, nil)
	candidates.EXPECT().Reconcile(gomock.Any(), true).
		Return(nil, dErrors.Wrap(sentinel.ErrTimeout, dErrors.CodeTimeout, "list candidates timed out"))

	router := NewRouter(New(Services{Candidates: candidates}, nil, ""), RouterConfig{Gatherer: prometheus.NewRegistry()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reconcile/candidates?dry_run=false", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reconcile/candidates?dry_run=true", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestHealthzReportsFailingDependency(t *testing.T) {
	router := NewRouter(New(Services{}, nil, ""), RouterConfig{
		Gatherer: prometheus.NewRegistry(),
		HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
}
