package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stagegate/internal/platform/logger"
	"stagegate/internal/store/postgres"
	"stagegate/pkg/platform/audit/consumer"
	auditpg "stagegate/pkg/platform/audit/store/postgres"
)

func newAuditConsumerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-consumer",
		Short: "Copy the Kafka transition-audit topic into Postgres",
		Long: `Consume the transition-audit topic and store each record in the
transition_audit table. Inserts are idempotent on record ID, so redelivery
after a crash is harmless.

Requires kafka.brokers and store.database_url.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Kafka.Brokers) == 0 || cfg.Store.DatabaseURL == "" {
				return errors.New("audit-consumer requires kafka brokers and a database URL")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log := logger.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)

			db, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}

			client, err := consumer.NewClient(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.Topic)
			if err != nil {
				return err
			}
			defer client.Close()

			log.InfoContext(ctx, "audit consumer starting",
				"topic", cfg.Kafka.Topic,
				"group", cfg.Kafka.ConsumerGroup,
			)
			return consumer.New(client, auditpg.New(db),
				consumer.WithLogger(log),
				consumer.WithDB(db),
				consumer.WithMaxElapsed(cfg.Audit.MaxElapsed),
			).Run(ctx)
		},
	}
}
