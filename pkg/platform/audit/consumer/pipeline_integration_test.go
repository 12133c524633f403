//go:build integration

package consumer_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"stagegate/internal/store/postgres"
	audit "stagegate/pkg/platform/audit"
	"stagegate/pkg/platform/audit/consumer"
	"stagegate/pkg/platform/audit/store/kafka"
	auditpg "stagegate/pkg/platform/audit/store/postgres"
	"stagegate/pkg/testutil/containers"
)

type PipelineSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	brokers  []string
	store    *auditpg.Store
	topic    string
}

func TestPipelineSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.brokers = mgr.GetRedpanda(s.T()).Brokers
	s.Require().NoError(postgres.Migrate(context.Background(), s.postgres.DB))
	s.store = auditpg.New(s.postgres.DB)
}

func (s *PipelineSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "transition_audit"))
	s.topic = "transitions-" + uuid.NewString()[:8]
}

func (s *PipelineSuite) produce(records ...audit.TransitionRecord) {
	ctx := context.Background()
	client, err := kafka.NewClient(s.brokers)
	s.Require().NoError(err)
	defer client.Close()
	s.Require().NoError(kafka.EnsureTopic(ctx, client, s.topic, 1, 1))

	producer := kafka.New(client, s.topic)
	for _, r := range records {
		s.Require().NoError(producer.Append(ctx, r))
	}
}

func (s *PipelineSuite) record(entityID, from, to string, at time.Time) audit.TransitionRecord {
	return audit.TransitionRecord{
		ID:          uuid.NewString(),
		EntityID:    entityID,
		Domain:      audit.DomainBot,
		From:        from,
		To:          to,
		Timestamp:   at,
		Allowed:     true,
		Reason:      "ok",
		TriggeredBy: "pipeline-test",
	}
}

func (s *PipelineSuite) TestRecordsReachPostgresOnce() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	first := s.record("bot-1", "TRIALS", "PAPER", now)
	second := s.record("bot-1", "PAPER", "SHADOW", now.Add(time.Second))
	other := s.record("bot-2", "TRIALS", "KILLED", now)
	// Redelivery of the same record must not duplicate rows.
	s.produce(first, second, other, first)

	client, err := consumer.NewClient(s.brokers, "audit-"+s.topic, s.topic)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- consumer.New(client, s.store, consumer.WithDB(s.postgres.DB)).Run(ctx)
	}()

	s.Eventually(func() bool {
		got, err := s.store.ListRecent(context.Background(), 10)
		return err == nil && len(got) == 3
	}, 30*time.Second, 200*time.Millisecond)

	cancel()
	s.NoError(<-done)

	history, err := s.store.ListByEntity(context.Background(), "bot-1")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(second.ID, history[0].ID)
	s.Equal(first.ID, history[1].ID)
	s.Equal(audit.DomainBot, history[0].Domain)
}
