package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 24*time.Hour, cfg.Reconcile.QueuedForQCSLA)
	assert.Equal(t, 48*time.Hour, cfg.Invariant.QCCeiling)
	assert.Equal(t, 100, cfg.Reconcile.RowBudget)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stagegate.yaml")
	body := `
server:
  addr: ":9090"
store:
  backend: postgres
  database_url: postgres://localhost/stagegate
reconcile:
  row_budget: 25
  queued_for_qc_sla: 12h
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, 25, cfg.Reconcile.RowBudget)
	assert.Equal(t, 12*time.Hour, cfg.Reconcile.QueuedForQCSLA)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7*24*time.Hour, cfg.Reconcile.QueuedSLA, "unset fields keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("STAGEGATE_ADDR", ":7000")
	t.Setenv("STAGEGATE_KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("STAGEGATE_RECONCILE_DRY_RUN", "true")
	t.Setenv("STAGEGATE_STORE_TIMEOUT", "750ms")
	t.Setenv("STAGEGATE_RECONCILE_ROW_BUDGET", "40")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Reconcile.DryRun)
	assert.Equal(t, 750*time.Millisecond, cfg.Store.Timeout)
	assert.Equal(t, 40, cfg.Reconcile.RowBudget)
}

func TestApplyEnvRejectsMalformed(t *testing.T) {
	t.Setenv("STAGEGATE_STORE_TIMEOUT", "soon")
	t.Setenv("STAGEGATE_RECONCILE_ROW_BUDGET", "many")

	cfg := Default()
	err := cfg.ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STAGEGATE_STORE_TIMEOUT")
	assert.Contains(t, err.Error(), "STAGEGATE_RECONCILE_ROW_BUDGET")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgres without url", func(c *Config) { c.Store.Backend = BackendPostgres }, "database_url"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "store.backend"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero budget", func(c *Config) { c.Reconcile.RowBudget = 0 }, "row_budget"},
		{"ceiling below sla", func(c *Config) { c.Invariant.QCCeiling = 12 * time.Hour }, "qc_ceiling"},
		{"brokers without topic", func(c *Config) {
			c.Kafka.Brokers = []string{"k:9092"}
			c.Kafka.Topic = ""
		}, "kafka.topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
