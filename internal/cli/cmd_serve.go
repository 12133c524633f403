package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stagegate/internal/platform/httpserver"
	"stagegate/internal/platform/metrics"
	"stagegate/internal/scheduler"
	httptransport "stagegate/internal/transport/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sweeps",
		Long: `Run the HTTP API together with the stage reconciler, candidate reconciler
and invariant checker on their configured intervals.

When Redis is configured, each sweep takes a lease first so only one replica
runs it per interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	locker, err := a.connectRedis(ctx)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(a.jobs(),
		scheduler.WithLogger(a.logger),
		scheduler.WithLocker(locker),
		scheduler.WithMetrics(metrics.New(a.registry)),
	)
	if err != nil {
		return err
	}

	svc := httptransport.Services{
		Transitions: a.transitions,
		Stages:      a.stages,
		Candidates:  a.candidates,
		Invariants:  a.checker,
		Audit:       a.publisher,
	}
	if a.approvals != nil {
		svc.Approvals = a.approvals
	} else {
		a.logger.WarnContext(ctx, "no governance signing key; CANARY to LIVE approvals will be refused")
	}

	router := httptransport.NewRouter(
		httptransport.New(svc, a.logger, a.cfg.Server.OperatorToken),
		httptransport.RouterConfig{
			RequestTimeout: a.cfg.Server.RequestTimeout,
			Gatherer:       a.registry,
			HealthChecks:   a.healthChecks(),
			Logger:         a.logger,
		},
	)
	srv := httpserver.New(a.cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, srv, a.cfg.Server.ShutdownTimeout, a.logger)
	})
	g.Go(func() error {
		return sched.Run(ctx)
	})
	return g.Wait()
}

func (a *app) jobs() []scheduler.Job {
	rc := a.cfg.Reconcile
	return []scheduler.Job{
		{
			Name:     "stage-reconcile",
			Interval: rc.StageInterval,
			LeaseTTL: rc.LeaseTTL,
			Run: func(ctx context.Context) error {
				_, err := a.stages.Reconcile(pinned(ctx))
				return err
			},
		},
		{
			Name:     "candidate-reconcile",
			Interval: rc.Interval,
			LeaseTTL: rc.LeaseTTL,
			Run: func(ctx context.Context) error {
				_, err := a.candidates.Reconcile(pinned(ctx), rc.DryRun)
				return err
			},
		},
		{
			Name:     "invariant-check",
			Interval: a.cfg.Invariant.Interval,
			LeaseTTL: rc.LeaseTTL,
			Run: func(ctx context.Context) error {
				a.checker.Check(pinned(ctx))
				return nil
			},
		},
	}
}

func (a *app) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{}
	if a.db != nil {
		checks["postgres"] = a.db.PingContext
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}
	if a.kafka != nil {
		checks["kafka"] = a.kafka.Ping
	}
	return checks
}
