// Package candidate decides whether a strategy candidate may move between
// pipeline dispositions. The adjacency is a DAG with two absorbing sinks,
// REJECTED and MERGED, and a re-entry loop through EXPIRED and RECYCLED.
package candidate

import (
	"fmt"
	"strings"

	"stagegate/internal/lifecycle"
	dErrors "stagegate/pkg/domain-errors"
)

// Decision is the outcome of Validate. Code is empty when Allowed is true.
type Decision struct {
	Allowed bool
	Reason  string
	Code    dErrors.Code
}

// Targets returns the dispositions d may move to.
func Targets(d lifecycle.Disposition) []lifecycle.Disposition {
	switch d {
	case lifecycle.DispositionPendingReview:
		return []lifecycle.Disposition{
			lifecycle.DispositionQueued,
			lifecycle.DispositionQueuedForQC,
			lifecycle.DispositionSentToLab,
			lifecycle.DispositionRejected,
			lifecycle.DispositionExpired,
		}
	case lifecycle.DispositionQueued:
		return []lifecycle.Disposition{
			lifecycle.DispositionQueuedForQC,
			lifecycle.DispositionSentToLab,
			lifecycle.DispositionRejected,
			lifecycle.DispositionExpired,
			lifecycle.DispositionReady,
		}
	case lifecycle.DispositionQueuedForQC:
		return []lifecycle.Disposition{
			lifecycle.DispositionSentToLab,
			lifecycle.DispositionReady,
			lifecycle.DispositionRejected,
			lifecycle.DispositionExpired,
		}
	case lifecycle.DispositionReady:
		return []lifecycle.Disposition{
			lifecycle.DispositionSentToLab,
			lifecycle.DispositionQueuedForQC,
			lifecycle.DispositionRejected,
			lifecycle.DispositionExpired,
			lifecycle.DispositionMerged,
		}
	case lifecycle.DispositionSentToLab:
		return []lifecycle.Disposition{
			lifecycle.DispositionMerged,
			lifecycle.DispositionRejected,
			lifecycle.DispositionRecycled,
		}
	case lifecycle.DispositionRejected, lifecycle.DispositionMerged:
		return nil
	case lifecycle.DispositionExpired:
		return []lifecycle.Disposition{lifecycle.DispositionRecycled}
	case lifecycle.DispositionRecycled:
		return []lifecycle.Disposition{lifecycle.DispositionPendingReview, lifecycle.DispositionQueued}
	}
	return nil
}

// IsTerminal reports whether d has no outgoing edges.
func IsTerminal(d lifecycle.Disposition) bool {
	return d.IsValid() && len(Targets(d)) == 0
}

// Validate classifies the from→to edge. Same-state is a no-op allow.
func Validate(from, to lifecycle.Disposition) Decision {
	if !from.IsValid() || !to.IsValid() {
		return Decision{
			Reason: fmt.Sprintf("unknown transition %s → %s", from, to),
			Code:   dErrors.CodeValidationRejected,
		}
	}
	if from == to {
		return Decision{Allowed: true, Reason: "no-op: already in " + string(to)}
	}
	if IsTerminal(from) {
		return Decision{
			Reason: fmt.Sprintf("%s is a terminal state; cannot move to %s", from, to),
			Code:   dErrors.CodeTerminalState,
		}
	}
	targets := Targets(from)
	for _, t := range targets {
		if t == to {
			return Decision{Allowed: true, Reason: fmt.Sprintf("%s → %s", from, to)}
		}
	}
	return Decision{
		Reason: fmt.Sprintf("transition %s → %s not allowed; valid targets: %s", from, to, join(targets)),
		Code:   dErrors.CodeValidationRejected,
	}
}

func join(ds []lifecycle.Disposition) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = string(d)
	}
	return strings.Join(parts, ", ")
}
