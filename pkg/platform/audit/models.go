package audit

import (
	"context"
	"time"
)

// Domain names the state machine a record belongs to. It enables different
// routing and retention for bot and candidate history.
type Domain string

const (
	DomainBot       Domain = "BOT"
	DomainCandidate Domain = "CANDIDATE"
)

func (d Domain) IsValid() bool {
	return d == DomainBot || d == DomainCandidate
}

// TransitionRecord captures one attempted state change, allowed or blocked.
// Records are append-only: once emitted they are never mutated.
type TransitionRecord struct {
	ID          string    `json:"id"`
	EntityID    string    `json:"entity_id"`
	Domain      Domain    `json:"domain"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Timestamp   time.Time `json:"timestamp"`
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason,omitempty"`
	TriggeredBy string    `json:"triggered_by"`
	// Approver is the governance identity that signed off CANARY→LIVE.
	Approver string `json:"approver,omitempty"`
	// RequestID correlates the record with the HTTP request or sweep run.
	RequestID string `json:"request_id,omitempty"`
}

// Sink is the durable system of record for transition history.
type Sink interface {
	Append(ctx context.Context, record TransitionRecord) error
}
