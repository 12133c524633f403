package cli

import (
	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	var (
		dryRun     bool
		stagesOnly bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one candidate sweep (or a stage sweep with --stages)",
		Long: `Run one reconciliation pass and print the report as JSON.

The candidate sweep moves candidates stuck in QUEUED_FOR_QC past their SLA to
READY. Every other finding is reported for manual review. With --dry-run
nothing is written.

The stage sweep (--stages) compares each bot's recorded stage with its
running process and never writes.`,
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

			if stagesOnly {
				report, err := a.stages.Reconcile(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			}
			report, err := a.candidates.Reconcile(ctx, dryRun)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without applying repairs")
	cmd.Flags().BoolVar(&stagesOnly, "stages", false, "run the stage sweep instead of the candidate sweep")
	return cmd
}
