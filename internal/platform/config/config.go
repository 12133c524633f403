// Package config loads service configuration from an optional YAML file with
// STAGEGATE_* environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	strutil "stagegate/pkg/platform/strings"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Audit      AuditConfig      `yaml:"audit"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Invariant  InvariantConfig  `yaml:"invariant"`
	Governance GovernanceConfig `yaml:"governance"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// OperatorToken guards mutating endpoints when set.
	OperatorToken   string        `yaml:"operator_token"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type StoreConfig struct {
	Backend     string        `yaml:"backend"`
	DatabaseURL string        `yaml:"database_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig configures the optional sweep lease. An empty URL disables it.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig configures the durable audit topic. No brokers means audit
// records go to the Postgres sink directly, or nowhere for the memory backend.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
	Partitions    int32    `yaml:"partitions"`
	Replicas      int16    `yaml:"replicas"`
}

type AuditConfig struct {
	BufferSize        int           `yaml:"buffer_size"`
	QueueSize         int           `yaml:"queue_size"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`
	MaxElapsed        time.Duration `yaml:"max_elapsed"`
	BreakerFailures   int           `yaml:"breaker_failures"`
	BreakerProbeEvery time.Duration `yaml:"breaker_probe_every"`
}

type ReconcileConfig struct {
	Interval         time.Duration `yaml:"interval"`
	StageInterval    time.Duration `yaml:"stage_interval"`
	DryRun           bool          `yaml:"dry_run"`
	RowBudget        int           `yaml:"row_budget"`
	QueuedForQCSLA   time.Duration `yaml:"queued_for_qc_sla"`
	QueuedSLA        time.Duration `yaml:"queued_sla"`
	PendingReviewSLA time.Duration `yaml:"pending_review_sla"`
	LeaseTTL         time.Duration `yaml:"lease_ttl"`
}

type InvariantConfig struct {
	Interval     time.Duration `yaml:"interval"`
	QCCeiling    time.Duration `yaml:"qc_ceiling"`
	LabOrphanAge time.Duration `yaml:"lab_orphan_age"`
	RowLimit     int           `yaml:"row_limit"`
}

type GovernanceConfig struct {
	SigningKey string `yaml:"signing_key"`
	Issuer     string `yaml:"issuer"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Timeout: 3 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:         "stagegate.transitions",
			ConsumerGroup: "stagegate-audit",
			Partitions:    3,
			Replicas:      1,
		},
		Audit: AuditConfig{
			BufferSize:        1000,
			QueueSize:         1024,
			AttemptTimeout:    2 * time.Second,
			MaxElapsed:        10 * time.Second,
			BreakerFailures:   5,
			BreakerProbeEvery: 10 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Interval:         15 * time.Minute,
			StageInterval:    5 * time.Minute,
			DryRun:           false,
			RowBudget:        100,
			QueuedForQCSLA:   24 * time.Hour,
			QueuedSLA:        7 * 24 * time.Hour,
			PendingReviewSLA: 30 * 24 * time.Hour,
			LeaseTTL:         2 * time.Minute,
		},
		Invariant: InvariantConfig{
			Interval:     10 * time.Minute,
			QCCeiling:    48 * time.Hour,
			LabOrphanAge: time.Hour,
			RowLimit:     500,
		},
		Governance: GovernanceConfig{
			Issuer: "governance",
		},
	}
}

// LoadFile reads path over the defaults. An empty path returns the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Kafka.Brokers = strutil.DedupeAndTrim(cfg.Kafka.Brokers)
	return cfg, nil
}

// Load is LoadFile followed by ApplyEnv and Validate.
func Load(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. Malformed values are
// errors rather than silently ignored.
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("STAGEGATE_ADDR", &c.Server.Addr)
	str("STAGEGATE_OPERATOR_TOKEN", &c.Server.OperatorToken)
	str("STAGEGATE_LOG_LEVEL", &c.Log.Level)
	str("STAGEGATE_LOG_FORMAT", &c.Log.Format)
	str("STAGEGATE_STORE_BACKEND", &c.Store.Backend)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("STAGEGATE_DATABASE_URL", &c.Store.DatabaseURL)
	dur("STAGEGATE_STORE_TIMEOUT", &c.Store.Timeout)
	str("STAGEGATE_REDIS_URL", &c.Redis.URL)
	num("STAGEGATE_REDIS_POOL_SIZE", &c.Redis.PoolSize)
	if v := strings.TrimSpace(os.Getenv("STAGEGATE_KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = strutil.SplitList(v)
	}
	str("STAGEGATE_KAFKA_TOPIC", &c.Kafka.Topic)
	str("STAGEGATE_KAFKA_GROUP", &c.Kafka.ConsumerGroup)
	num("STAGEGATE_AUDIT_BUFFER_SIZE", &c.Audit.BufferSize)
	num("STAGEGATE_AUDIT_QUEUE_SIZE", &c.Audit.QueueSize)
	dur("STAGEGATE_RECONCILE_INTERVAL", &c.Reconcile.Interval)
	dur("STAGEGATE_STAGE_RECONCILE_INTERVAL", &c.Reconcile.StageInterval)
	num("STAGEGATE_RECONCILE_ROW_BUDGET", &c.Reconcile.RowBudget)
	if v := strings.TrimSpace(os.Getenv("STAGEGATE_RECONCILE_DRY_RUN")); v != "" {
		c.Reconcile.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	dur("STAGEGATE_INVARIANT_INTERVAL", &c.Invariant.Interval)
	str("STAGEGATE_GOVERNANCE_SIGNING_KEY", &c.Governance.SigningKey)
	str("STAGEGATE_GOVERNANCE_ISSUER", &c.Governance.Issuer)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be memory or postgres, got %q", c.Store.Backend))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store.timeout must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Audit.BufferSize <= 0 || c.Audit.QueueSize <= 0 {
		errs = append(errs, errors.New("audit buffer and queue sizes must be positive"))
	}
	if c.Reconcile.RowBudget <= 0 {
		errs = append(errs, errors.New("reconcile.row_budget must be positive"))
	}
	if c.Reconcile.QueuedForQCSLA <= 0 || c.Reconcile.QueuedSLA <= 0 || c.Reconcile.PendingReviewSLA <= 0 {
		errs = append(errs, errors.New("reconcile SLAs must be positive"))
	}
	if c.Invariant.QCCeiling <= c.Reconcile.QueuedForQCSLA {
		errs = append(errs, errors.New("invariant.qc_ceiling must exceed reconcile.queued_for_qc_sla"))
	}
	return errors.Join(errs...)
}
