// Package stage decides whether a bot may move between lifecycle stages.
//
// Validate is pure: it reads no state and has no side effects, so it is safe
// for previews. Orchestration (internal/transition) pairs it with a
// compare-and-swap write.
package stage

import (
	"fmt"
	"strings"

	"stagegate/internal/lifecycle"
	dErrors "stagegate/pkg/domain-errors"
)

// Options carries the caller-supplied context for a stage change.
type Options struct {
	// IsEmergency opens the blown-account escape hatch to TRIALS or KILLED.
	IsEmergency bool
	// HasGovernanceApproval is maker-checker evidence for CANARY→LIVE.
	HasGovernanceApproval bool
}

// Decision is the outcome of Validate.
//
// RequiresApproval distinguishes "route to an approval workflow" from a hard
// denial; Code carries the same distinction for error mapping. Code is empty
// when Allowed is true.
type Decision struct {
	Allowed          bool
	Reason           string
	RequiresApproval bool
	GateRequirements []string
	Code             dErrors.Code
}

// Validate classifies the from→to edge. Rules apply in order:
//
//  1. from == to is a no-op allow
//  2. KILLED is terminal
//  3. anything may be killed
//  4. emergencies may drop straight to TRIALS (or KILLED)
//  5. promotions are single-step; CANARY→LIVE needs governance approval
//  6. demotions follow a per-origin target list and may skip stages
//  7. everything else is rejected
func Validate(from, to lifecycle.Stage, opts Options) Decision {
	if !from.IsValid() || !to.IsValid() {
		return reject(dErrors.CodeValidationRejected,
			fmt.Sprintf("unknown transition %s → %s", from, to))
	}
	if from == to {
		return Decision{Allowed: true, Reason: "no-op: already in " + string(to)}
	}
	if from == lifecycle.StageKilled {
		return reject(dErrors.CodeTerminalState,
			fmt.Sprintf("KILLED is a terminal state; cannot move to %s", to))
	}
	if to == lifecycle.StageKilled {
		return Decision{Allowed: true, Reason: "emergency kill"}
	}
	if opts.IsEmergency && to == lifecycle.StageTrials {
		return Decision{Allowed: true, Reason: fmt.Sprintf("emergency reset %s → TRIALS", from)}
	}

	fromRank, _ := from.Rank()
	toRank, _ := to.Rank()

	if toRank > fromRank {
		return validatePromotion(from, to, opts)
	}
	if toRank < fromRank {
		return validateDemotion(from, to)
	}
	return reject(dErrors.CodeValidationRejected,
		fmt.Sprintf("unknown transition %s → %s; valid targets: %s", from, to, joinStages(ValidTargets(from))))
}

func validatePromotion(from, to lifecycle.Stage, opts Options) Decision {
	next, ok := PromotionTarget(from)
	if !ok || next != to {
		chain := promotionChain(from, to)
		path := append(append([]lifecycle.Stage{from}, chain...), to)
		return reject(dErrors.CodeValidationRejected,
			fmt.Sprintf("promotion %s → %s skips stages; promote through %s first (%s)",
				from, to, joinStages(chain), joinPath(path)))
	}

	gates := GateRequirements(from, to)
	if from == lifecycle.StageCanary && to == lifecycle.StageLive && !opts.HasGovernanceApproval {
		return Decision{
			Allowed:          false,
			Reason:           "CANARY → LIVE requires governance approval",
			RequiresApproval: true,
			GateRequirements: gates,
			Code:             dErrors.CodeGovernanceRequired,
		}
	}
	return Decision{
		Allowed:          true,
		Reason:           fmt.Sprintf("promotion %s → %s", from, to),
		GateRequirements: gates,
	}
}

func validateDemotion(from, to lifecycle.Stage) Decision {
	targets := DemotionTargets(from)
	for _, t := range targets {
		if t == to {
			return Decision{Allowed: true, Reason: fmt.Sprintf("demotion %s → %s", from, to)}
		}
	}
	return reject(dErrors.CodeValidationRejected,
		fmt.Sprintf("demotion %s → %s not allowed; valid targets: %s", from, to, joinStages(ValidTargets(from))))
}

// PromotionTarget returns the single stage from may be promoted to.
func PromotionTarget(from lifecycle.Stage) (lifecycle.Stage, bool) {
	switch from {
	case lifecycle.StageTrials:
		return lifecycle.StagePaper, true
	case lifecycle.StagePaper:
		return lifecycle.StageShadow, true
	case lifecycle.StageShadow:
		return lifecycle.StageCanary, true
	case lifecycle.StageCanary:
		return lifecycle.StageLive, true
	case lifecycle.StageLive, lifecycle.StageKilled:
		return "", false
	}
	return "", false
}

// DemotionTargets lists the stages from may be demoted to in one transition,
// nearest first.
func DemotionTargets(from lifecycle.Stage) []lifecycle.Stage {
	switch from {
	case lifecycle.StageTrials:
		return nil
	case lifecycle.StagePaper:
		return []lifecycle.Stage{lifecycle.StageTrials}
	case lifecycle.StageShadow:
		return []lifecycle.Stage{lifecycle.StagePaper, lifecycle.StageTrials}
	case lifecycle.StageCanary:
		return []lifecycle.Stage{lifecycle.StageShadow, lifecycle.StagePaper, lifecycle.StageTrials}
	case lifecycle.StageLive:
		return []lifecycle.Stage{lifecycle.StageCanary, lifecycle.StageShadow, lifecycle.StagePaper, lifecycle.StageTrials}
	case lifecycle.StageKilled:
		return nil
	}
	return nil
}

// ValidTargets lists every stage reachable from from without emergency or
// approval considerations: the promotion target, the demotion targets and
// KILLED. KILLED itself has none.
func ValidTargets(from lifecycle.Stage) []lifecycle.Stage {
	if from == lifecycle.StageKilled || !from.IsValid() {
		return nil
	}
	var out []lifecycle.Stage
	if next, ok := PromotionTarget(from); ok {
		out = append(out, next)
	}
	out = append(out, DemotionTargets(from)...)
	return append(out, lifecycle.StageKilled)
}

// promotionChain returns the intermediate stages strictly between from and to.
func promotionChain(from, to lifecycle.Stage) []lifecycle.Stage {
	var chain []lifecycle.Stage
	cur := from
	for {
		next, ok := PromotionTarget(cur)
		if !ok || next == to {
			return chain
		}
		chain = append(chain, next)
		cur = next
	}
}

func reject(code dErrors.Code, reason string) Decision {
	return Decision{Allowed: false, Reason: reason, Code: code}
}

func joinStages(stages []lifecycle.Stage) string {
	if len(stages) == 0 {
		return "none"
	}
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

func joinPath(stages []lifecycle.Stage) string {
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = string(s)
	}
	return strings.Join(parts, " → ")
}
