package httptransport

import (
	"strings"

	"stagegate/internal/lifecycle"
	dErrors "stagegate/pkg/domain-errors"
	audit "stagegate/pkg/platform/audit"
)

const maxTriggeredByLen = 128

type ValidateStageRequest struct {
	From                  string `json:"from"`
	To                    string `json:"to"`
	IsEmergency           bool   `json:"is_emergency"`
	HasGovernanceApproval bool   `json:"has_governance_approval"`

	from, to lifecycle.Stage
}

func (r *ValidateStageRequest) Normalize() {
	r.From = strings.ToUpper(strings.TrimSpace(r.From))
	r.To = strings.ToUpper(strings.TrimSpace(r.To))
}

func (r *ValidateStageRequest) Validate() error {
	var err error
	if r.from, err = parseStage("from", r.From); err != nil {
		return err
	}
	r.to, err = parseStage("to", r.To)
	return err
}

type ValidateCandidateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`

	from, to lifecycle.Disposition
}

func (r *ValidateCandidateRequest) Normalize() {
	r.From = strings.ToUpper(strings.TrimSpace(r.From))
	r.To = strings.ToUpper(strings.TrimSpace(r.To))
}

func (r *ValidateCandidateRequest) Validate() error {
	var err error
	if r.from, err = parseDisposition("from", r.From); err != nil {
		return err
	}
	r.to, err = parseDisposition("to", r.To)
	return err
}

type BotTransitionRequest struct {
	To          string `json:"to"`
	TriggeredBy string `json:"triggered_by"`
	IsEmergency bool   `json:"is_emergency"`
	// ApprovalToken is the signed governance approval for CANARY→LIVE.
	ApprovalToken string `json:"approval_token,omitempty"`

	to lifecycle.Stage
}

func (r *BotTransitionRequest) Normalize() {
	r.To = strings.ToUpper(strings.TrimSpace(r.To))
	r.TriggeredBy = strings.TrimSpace(r.TriggeredBy)
	r.ApprovalToken = strings.TrimSpace(r.ApprovalToken)
}

func (r *BotTransitionRequest) Validate() error {
	if len(r.TriggeredBy) > maxTriggeredByLen {
		return dErrors.New(dErrors.CodeBadRequest, "triggered_by is too long")
	}
	var err error
	r.to, err = parseStage("to", r.To)
	return err
}

type CandidateTransitionRequest struct {
	To          string `json:"to"`
	TriggeredBy string `json:"triggered_by"`
	// ExpectedFrom makes the write conditional on the current disposition.
	ExpectedFrom string `json:"expected_from,omitempty"`

	to, expectedFrom lifecycle.Disposition
}

func (r *CandidateTransitionRequest) Normalize() {
	r.To = strings.ToUpper(strings.TrimSpace(r.To))
	r.TriggeredBy = strings.TrimSpace(r.TriggeredBy)
	r.ExpectedFrom = strings.ToUpper(strings.TrimSpace(r.ExpectedFrom))
}

func (r *CandidateTransitionRequest) Validate() error {
	if len(r.TriggeredBy) > maxTriggeredByLen {
		return dErrors.New(dErrors.CodeBadRequest, "triggered_by is too long")
	}
	var err error
	if r.to, err = parseDisposition("to", r.To); err != nil {
		return err
	}
	if r.ExpectedFrom != "" {
		r.expectedFrom, err = parseDisposition("expected_from", r.ExpectedFrom)
	}
	return err
}

type ValidationResponse struct {
	Allowed          bool     `json:"allowed"`
	Reason           string   `json:"reason"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
	GateRequirements []string `json:"gate_requirements,omitempty"`
	Code             string   `json:"code,omitempty"`
}

type AuditResponse struct {
	Records []audit.TransitionRecord `json:"records"`
	Count   int                      `json:"count"`
}

func parseStage(field, raw string) (lifecycle.Stage, error) {
	if raw == "" {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "%s is required", field)
	}
	s, err := lifecycle.ParseStage(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, field+": unknown stage "+raw)
	}
	return s, nil
}

func parseDisposition(field, raw string) (lifecycle.Disposition, error) {
	if raw == "" {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "%s is required", field)
	}
	d, err := lifecycle.ParseDisposition(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, field+": unknown disposition "+raw)
	}
	return d, nil
}
