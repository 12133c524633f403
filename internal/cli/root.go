// Package cli provides the cobra command tree for stagegate.
package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// GlobalOpts holds flags shared by every subcommand.
type GlobalOpts struct {
	ConfigPath string
}

var globalOpts GlobalOpts

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stagegate",
		Short: "Lifecycle control plane for trading bots and strategy candidates",
		Long: `stagegate - lifecycle control plane for trading bots and strategy candidates

Validates and applies bot stage and candidate disposition changes, reconciles
drift between recorded state and running processes, and checks global health
invariants.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&globalOpts.ConfigPath, "config", "",
		"path to a YAML config file (STAGEGATE_* environment variables override it)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newReconcileCmd(),
		newInvariantsCmd(),
		newAuditConsumerCmd(),
	)
	return rootCmd
}

// Execute runs the root command with the given output writers.
func Execute(args []string, stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}
