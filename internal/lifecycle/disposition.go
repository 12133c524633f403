package lifecycle

import (
	"fmt"
	"strings"
	"time"
)

// Disposition is a strategy candidate's position in the vetting pipeline.
type Disposition string

const (
	DispositionPendingReview Disposition = "PENDING_REVIEW"
	DispositionQueued        Disposition = "QUEUED"
	DispositionQueuedForQC   Disposition = "QUEUED_FOR_QC"
	DispositionSentToLab     Disposition = "SENT_TO_LAB"
	DispositionReady         Disposition = "READY"
	DispositionRejected      Disposition = "REJECTED"
	DispositionMerged        Disposition = "MERGED"
	DispositionExpired       Disposition = "EXPIRED"
	DispositionRecycled      Disposition = "RECYCLED"
)

func AllDispositions() []Disposition {
	return []Disposition{
		DispositionPendingReview,
		DispositionQueued,
		DispositionQueuedForQC,
		DispositionSentToLab,
		DispositionReady,
		DispositionRejected,
		DispositionMerged,
		DispositionExpired,
		DispositionRecycled,
	}
}

func (d Disposition) IsValid() bool {
	switch d {
	case DispositionPendingReview, DispositionQueued, DispositionQueuedForQC,
		DispositionSentToLab, DispositionReady, DispositionRejected,
		DispositionMerged, DispositionExpired, DispositionRecycled:
		return true
	}
	return false
}

func (d Disposition) String() string { return string(d) }

// ParseDisposition accepts a disposition name in any case.
func ParseDisposition(raw string) (Disposition, error) {
	d := Disposition(strings.ToUpper(strings.TrimSpace(raw)))
	if !d.IsValid() {
		return "", fmt.Errorf("unknown disposition %q", raw)
	}
	return d, nil
}

// Candidate is a strategy moving toward (or away from) becoming a bot.
// CreatedBotID is the downstream artifact; empty until a bot exists.
type Candidate struct {
	ID           string      `json:"id"`
	Disposition  Disposition `json:"disposition"`
	UpdatedAt    time.Time   `json:"updated_at"`
	CreatedBotID string      `json:"created_bot_id,omitempty"`
}

// CandidateKey is a position in the (UpdatedAt, ID) order that paged scans
// resume from. The zero key is the start of the order.
type CandidateKey struct {
	UpdatedAt time.Time
	ID        string
}

// KeyOf returns the position of c.
func KeyOf(c Candidate) CandidateKey {
	return CandidateKey{UpdatedAt: c.UpdatedAt, ID: c.ID}
}

func (k CandidateKey) IsZero() bool {
	return k.ID == "" && k.UpdatedAt.IsZero()
}

// Precedes reports whether c sorts strictly after k.
func (k CandidateKey) Precedes(c Candidate) bool {
	if k.IsZero() {
		return true
	}
	if !c.UpdatedAt.Equal(k.UpdatedAt) {
		return c.UpdatedAt.After(k.UpdatedAt)
	}
	return c.ID > k.ID
}

// VerificationStatus tracks a verification job independently of its candidate.
type VerificationStatus string

const (
	VerificationQueued    VerificationStatus = "QUEUED"
	VerificationRunning   VerificationStatus = "RUNNING"
	VerificationCompleted VerificationStatus = "COMPLETED"
	VerificationFailed    VerificationStatus = "FAILED"
	VerificationCancelled VerificationStatus = "CANCELLED"
)

func (s VerificationStatus) IsValid() bool {
	switch s {
	case VerificationQueued, VerificationRunning, VerificationCompleted,
		VerificationFailed, VerificationCancelled:
		return true
	}
	return false
}

// Verification is a QC/verification job attached to a candidate.
// Passed is meaningful only once Status is COMPLETED.
type Verification struct {
	ID          string             `json:"id"`
	CandidateID string             `json:"candidate_id"`
	Status      VerificationStatus `json:"status"`
	Passed      bool               `json:"passed"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CandidateVerification pairs a verification with the candidate it belongs
// to, as returned by consistency queries.
type CandidateVerification struct {
	Candidate    Candidate
	Verification Verification
}
