// Package lifecycle holds the domain types shared by the bot-stage and
// candidate-disposition state machines.
//
// Stage and Disposition are closed enums. Every switch over them lists all
// members; table tests over AllStages and AllDispositions fail when a new
// member is added without updating the adjacency tables.
package lifecycle

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a bot's risk tier, or the terminal KILLED state.
type Stage string

const (
	StageTrials Stage = "TRIALS"
	StagePaper  Stage = "PAPER"
	StageShadow Stage = "SHADOW"
	StageCanary Stage = "CANARY"
	StageLive   Stage = "LIVE"
	StageKilled Stage = "KILLED"
)

// AllStages lists every stage in risk order, KILLED last.
func AllStages() []Stage {
	return []Stage{StageTrials, StagePaper, StageShadow, StageCanary, StageLive, StageKilled}
}

// Rank returns the position of s in the ordered tiers TRIALS<PAPER<SHADOW<CANARY<LIVE.
// KILLED and unknown values have no rank.
func (s Stage) Rank() (int, bool) {
	switch s {
	case StageTrials:
		return 0, true
	case StagePaper:
		return 1, true
	case StageShadow:
		return 2, true
	case StageCanary:
		return 3, true
	case StageLive:
		return 4, true
	case StageKilled:
		return 0, false
	}
	return 0, false
}

func (s Stage) IsValid() bool {
	switch s {
	case StageTrials, StagePaper, StageShadow, StageCanary, StageLive, StageKilled:
		return true
	}
	return false
}

func (s Stage) IsTerminal() bool { return s == StageKilled }

func (s Stage) String() string { return string(s) }

// ParseStage accepts a stage name in any case.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown stage %q", raw)
	}
	return s, nil
}

// Bot is the lifecycle aggregate for a trading bot.
//
// Invariant: once Stage is KILLED it never changes.
type Bot struct {
	ID             string    `json:"id"`
	Stage          Stage     `json:"stage"`
	StageUpdatedAt time.Time `json:"stage_updated_at"`
}

// Runner is the process record executing a bot. It is referenced, not owned:
// its Stage should equal the bot's except during a reconciliation window.
type Runner struct {
	ID        string    `json:"id"`
	BotID     string    `json:"bot_id"`
	Stage     Stage     `json:"stage"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BotRunner joins a bot with its primary runner. Runner is nil when the bot
// has no active process record.
type BotRunner struct {
	Bot    Bot
	Runner *Runner
}
