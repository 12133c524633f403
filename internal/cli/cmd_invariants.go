package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInvariantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invariants",
		Short: "Check global invariants and print the report",
		Long: `Run every invariant check once and print the report as JSON.

Exits 2 when any check finds a violation or cannot complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := pinned(cmd.Context())
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.checker.Check(ctx)
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Passed {
				return fmt.Errorf("%w: %d violations, %d check errors",
					ErrCheckFailed, len(report.Violations), len(report.Errors))
			}
			return nil
		},
	}
}
