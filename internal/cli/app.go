package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	"stagegate/internal/governance"
	"stagegate/internal/invariant"
	"stagegate/internal/platform/config"
	"stagegate/internal/platform/logger"
	"stagegate/internal/platform/redis"
	"stagegate/internal/reconcile"
	"stagegate/internal/scheduler"
	"stagegate/internal/store/memory"
	"stagegate/internal/store/postgres"
	"stagegate/internal/transition"
	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/platform/audit/publisher"
	kafkastore "stagegate/pkg/platform/audit/store/kafka"
	auditpg "stagegate/pkg/platform/audit/store/postgres"
	"stagegate/pkg/platform/circuit"
	"stagegate/pkg/requestcontext"
)

// ErrCheckFailed marks a command that ran correctly but whose result is
// negative: a refused validation or a failed invariant check.
var ErrCheckFailed = errors.New("check failed")

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	if errors.Is(err, ErrCheckFailed) {
		return 2
	}
	return 1
}

// lifecycleStore is what every backend provides.
type lifecycleStore interface {
	transition.BotStore
	transition.CandidateStore
	reconcile.BotRunnerLister
	reconcile.CandidateLister
	invariant.Store
}

// app holds the wired dependencies for one process.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	db          *sql.DB
	store       lifecycleStore
	redis       *redis.Client
	kafka       *kgo.Client
	publisher   *publisher.Publisher
	approvals   *governance.Verifier
	transitions *transition.Service
	stages      *reconcile.StageReconciler
	candidates  *reconcile.CandidateReconciler
	checker     *invariant.Checker
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(globalOpts.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format),
		registry: prometheus.NewRegistry(),
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.openStore(ctx); err != nil {
		return err
	}
	sink, err := a.auditSink(ctx)
	if err != nil {
		return err
	}

	a.publisher = publisher.New(audit.NewLog(cfg.Audit.BufferSize), sink,
		publisher.WithLogger(a.logger),
		publisher.WithMetrics(audit.NewMetrics(a.registry)),
		publisher.WithQueueSize(cfg.Audit.QueueSize),
		publisher.WithRetry(cfg.Audit.AttemptTimeout, cfg.Audit.MaxElapsed),
		publisher.WithBreaker(circuit.New("audit-sink",
			circuit.WithFailureThreshold(cfg.Audit.BreakerFailures),
			circuit.WithProbeInterval(cfg.Audit.BreakerProbeEvery),
		)),
	)

	if cfg.Governance.SigningKey != "" {
		a.approvals = governance.NewVerifier(cfg.Governance.SigningKey, cfg.Governance.Issuer)
	}

	a.transitions, err = transition.New(a.store, a.store,
		transition.WithLogger(a.logger),
		transition.WithAuditPublisher(a.publisher),
		transition.WithMetrics(transition.NewMetrics(a.registry)),
		transition.WithStoreTimeout(cfg.Store.Timeout),
	)
	if err != nil {
		return err
	}

	sweepMetrics := reconcile.NewMetrics(a.registry)
	a.stages, err = reconcile.NewStageReconciler(a.store,
		reconcile.WithStageLogger(a.logger),
		reconcile.WithStageMetrics(sweepMetrics),
		reconcile.WithStageRowBudget(cfg.Reconcile.RowBudget),
		reconcile.WithStageStoreTimeout(cfg.Store.Timeout),
	)
	if err != nil {
		return err
	}
	a.candidates, err = reconcile.NewCandidateReconciler(a.store, a.transitions,
		reconcile.WithLogger(a.logger),
		reconcile.WithMetrics(sweepMetrics),
		reconcile.WithRowBudget(cfg.Reconcile.RowBudget),
		reconcile.WithStoreTimeout(cfg.Store.Timeout),
		reconcile.WithSLAs(reconcile.SLAs{
			QueuedForQC:   cfg.Reconcile.QueuedForQCSLA,
			Queued:        cfg.Reconcile.QueuedSLA,
			PendingReview: cfg.Reconcile.PendingReviewSLA,
		}),
	)
	if err != nil {
		return err
	}
	a.checker, err = invariant.New(a.store,
		invariant.WithLogger(a.logger),
		invariant.WithMetrics(invariant.NewMetrics(a.registry)),
		invariant.WithQCCeiling(cfg.Invariant.QCCeiling),
		invariant.WithLabOrphanAge(cfg.Invariant.LabOrphanAge),
		invariant.WithRowLimit(cfg.Invariant.RowLimit),
		invariant.WithStoreTimeout(cfg.Store.Timeout),
	)
	if err != nil {
		return err
	}
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, a.cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		a.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		a.store = postgres.New(db)
		a.logger.InfoContext(ctx, "using postgres store")
	default:
		a.store = memory.New()
		a.logger.WarnContext(ctx, "using in-memory store; state is lost on exit")
	}
	return nil
}

// auditSink picks the durable audit destination: Kafka when brokers are
// configured, else the Postgres table, else none (ring buffer only).
func (a *app) auditSink(ctx context.Context) (audit.Sink, error) {
	if len(a.cfg.Kafka.Brokers) > 0 {
		client, err := kafkastore.NewClient(a.cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		a.kafka = client
		if err := kafkastore.EnsureTopic(ctx, client, a.cfg.Kafka.Topic, a.cfg.Kafka.Partitions, a.cfg.Kafka.Replicas); err != nil {
			return nil, err
		}
		a.logger.InfoContext(ctx, "audit sink: kafka", "topic", a.cfg.Kafka.Topic)
		return kafkastore.New(client, a.cfg.Kafka.Topic), nil
	}
	if a.db != nil {
		a.logger.InfoContext(ctx, "audit sink: postgres")
		return auditpg.New(a.db), nil
	}
	return nil, nil
}

// connectRedis enables sweep leases when Redis is configured.
func (a *app) connectRedis(ctx context.Context) (scheduler.Locker, error) {
	client, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}
	a.redis = client
	return leaseLocker{redis.NewLeaser(client.Client)}, nil
}

// Close releases resources in reverse order of acquisition. It drains the
// audit queue first so pending records reach the sink.
func (a *app) Close() {
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// pinned stamps ctx with one "now" so a whole sweep agrees on time.
func pinned(ctx context.Context) context.Context {
	return requestcontext.WithTime(ctx, time.Now())
}

type leaseLocker struct {
	leaser *redis.Leaser
}

func (l leaseLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (scheduler.Lease, bool, error) {
	lease, ok, err := l.leaser.TryAcquire(ctx, name, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return lease, true, nil
}
