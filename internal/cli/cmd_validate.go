package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stagegate/internal/candidate"
	"stagegate/internal/lifecycle"
	"stagegate/internal/stage"
)

type validateOutput struct {
	From             string   `json:"from"`
	To               string   `json:"to"`
	Allowed          bool     `json:"allowed"`
	Reason           string   `json:"reason"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
	GateRequirements []string `json:"gate_requirements,omitempty"`
	Code             string   `json:"code,omitempty"`
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check whether a transition is allowed, without touching state",
	}
	cmd.AddCommand(newValidateStageCmd(), newValidateCandidateCmd())
	return cmd
}

func newValidateStageCmd() *cobra.Command {
	var opts stage.Options

	cmd := &cobra.Command{
		Use:   "stage <from> <to>",
		Short: "Validate a bot stage change",
		Long: `Validate a bot stage change.

Stages: TRIALS, PAPER, SHADOW, CANARY, LIVE, KILLED.
Exits 2 when the change is refused.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := lifecycle.ParseStage(args[0])
			if err != nil {
				return err
			}
			to, err := lifecycle.ParseStage(args[1])
			if err != nil {
				return err
			}
			d := stage.Validate(from, to, opts)
			return writeDecision(cmd.OutOrStdout(), validateOutput{
				From:             string(from),
				To:               string(to),
				Allowed:          d.Allowed,
				Reason:           d.Reason,
				RequiresApproval: d.RequiresApproval,
				GateRequirements: d.GateRequirements,
				Code:             string(d.Code),
			})
		},
	}
	cmd.Flags().BoolVar(&opts.IsEmergency, "emergency", false, "treat as an emergency demotion")
	cmd.Flags().BoolVar(&opts.HasGovernanceApproval, "approved", false, "assume governance approval is present")
	return cmd
}

func newValidateCandidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "candidate <from> <to>",
		Short: "Validate a candidate disposition change",
		Long: `Validate a candidate disposition change.

Exits 2 when the change is refused.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := lifecycle.ParseDisposition(args[0])
			if err != nil {
				return err
			}
			to, err := lifecycle.ParseDisposition(args[1])
			if err != nil {
				return err
			}
			d := candidate.Validate(from, to)
			return writeDecision(cmd.OutOrStdout(), validateOutput{
				From:    string(from),
				To:      string(to),
				Allowed: d.Allowed,
				Reason:  d.Reason,
				Code:    string(d.Code),
			})
		},
	}
}

func writeDecision(w io.Writer, out validateOutput) error {
	if err := writeJSON(w, out); err != nil {
		return err
	}
	if !out.Allowed {
		return fmt.Errorf("%w: %s", ErrCheckFailed, out.Reason)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
