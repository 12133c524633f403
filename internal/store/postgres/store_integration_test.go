//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stagegate/internal/lifecycle"
	"stagegate/internal/store/postgres"
	"stagegate/pkg/platform/sentinel"
	"stagegate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.postgres.DB))
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.now = time.Now().UTC().Truncate(time.Millisecond)
	err := s.postgres.TruncateTables(context.Background(),
		"verifications", "runners", "candidates", "bots", "transition_audit")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	s.NoError(postgres.Migrate(context.Background(), s.postgres.DB))
}

func (s *PostgresStoreSuite) TestCompareAndSwapStage() {
	ctx := context.Background()
	s.Require().NoError(s.store.SaveBot(ctx, lifecycle.Bot{ID: "bot-1", Stage: lifecycle.StagePaper, StageUpdatedAt: s.now}))

	s.Run("applies when expected matches", func() {
		at := s.now.Add(time.Minute)
		s.Require().NoError(s.store.CompareAndSwapStage(ctx, "bot-1", lifecycle.StagePaper, lifecycle.StageShadow, at))
		bot, err := s.store.FindBot(ctx, "bot-1")
		s.Require().NoError(err)
		s.Equal(lifecycle.StageShadow, bot.Stage)
		s.True(at.Equal(bot.StageUpdatedAt))
	})

	s.Run("stale expectation conflicts", func() {
		err := s.store.CompareAndSwapStage(ctx, "bot-1", lifecycle.StagePaper, lifecycle.StageTrials, s.now)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing bot is not found", func() {
		err := s.store.CompareAndSwapStage(ctx, "ghost", lifecycle.StagePaper, lifecycle.StageTrials, s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindBot(ctx, "ghost")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestConcurrentSwapsOneWinner verifies that concurrent swaps from the same
// expected stage commit exactly once.
func (s *PostgresStoreSuite) TestConcurrentSwapsOneWinner() {
	ctx := context.Background()
	s.Require().NoError(s.store.SaveBot(ctx, lifecycle.Bot{ID: "bot-race", Stage: lifecycle.StageShadow, StageUpdatedAt: s.now}))

	const goroutines = 20
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := lifecycle.StageCanary
			if i%2 == 0 {
				next = lifecycle.StagePaper
			}
			err := s.store.CompareAndSwapStage(ctx, "bot-race", lifecycle.StageShadow, next, s.now)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestListBotsWithRunners() {
	ctx := context.Background()
	s.Require().NoError(s.store.SaveBot(ctx, lifecycle.Bot{ID: "bot-a", Stage: lifecycle.StageLive, StageUpdatedAt: s.now}))
	s.Require().NoError(s.store.SaveBot(ctx, lifecycle.Bot{ID: "bot-b", Stage: lifecycle.StageCanary, StageUpdatedAt: s.now}))
	s.Require().NoError(s.store.SaveRunner(ctx, lifecycle.Runner{
		ID: "r-old", BotID: "bot-a", Stage: lifecycle.StageCanary, Active: false, UpdatedAt: s.now,
	}))
	s.Require().NoError(s.store.SaveRunner(ctx, lifecycle.Runner{
		ID: "r-live", BotID: "bot-a", Stage: lifecycle.StageLive, Active: true, UpdatedAt: s.now.Add(-time.Hour),
	}))

	rows, err := s.store.ListBotsWithRunners(ctx, "", 0)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Require().NotNil(rows[0].Runner)
	s.Equal("r-live", rows[0].Runner.ID)
	s.Nil(rows[1].Runner)

	limited, err := s.store.ListBotsWithRunners(ctx, "", 1)
	s.Require().NoError(err)
	s.Len(limited, 1)

	resumed, err := s.store.ListBotsWithRunners(ctx, "bot-a", 0)
	s.Require().NoError(err)
	s.Require().Len(resumed, 1)
	s.Equal("bot-b", resumed[0].Bot.ID)
}

func (s *PostgresStoreSuite) TestCandidateKeysetPaging() {
	ctx := context.Background()
	tied := s.now.Add(-30 * time.Hour)
	for _, c := range []lifecycle.Candidate{
		{ID: "c-old", Disposition: lifecycle.DispositionQueued, UpdatedAt: s.now.Add(-40 * time.Hour)},
		{ID: "c-tie-a", Disposition: lifecycle.DispositionQueued, UpdatedAt: tied},
		{ID: "c-tie-b", Disposition: lifecycle.DispositionQueued, UpdatedAt: tied},
	} {
		s.Require().NoError(s.store.SaveCandidate(ctx, c))
	}
	cutoff := s.now.Add(-24 * time.Hour)

	first, err := s.store.ListCandidatesInDispositionAfter(ctx, lifecycle.DispositionQueued, cutoff, lifecycle.CandidateKey{}, 2)
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.Equal("c-old", first[0].ID)

	rest, err := s.store.ListCandidatesInDispositionAfter(ctx, lifecycle.DispositionQueued, cutoff, lifecycle.KeyOf(first[1]), 0)
	s.Require().NoError(err)
	s.Require().Len(rest, 1)
	s.Equal("c-tie-b", rest[0].ID)
}

func (s *PostgresStoreSuite) TestCandidateQueries() {
	ctx := context.Background()
	cutoff := s.now.Add(-24 * time.Hour)
	for _, c := range []lifecycle.Candidate{
		{ID: "c-young", Disposition: lifecycle.DispositionQueuedForQC, UpdatedAt: s.now.Add(-time.Hour)},
		{ID: "c-40h", Disposition: lifecycle.DispositionQueuedForQC, UpdatedAt: s.now.Add(-40 * time.Hour)},
		{ID: "c-30h", Disposition: lifecycle.DispositionQueuedForQC, UpdatedAt: s.now.Add(-30 * time.Hour), CreatedBotID: "bot-x"},
	} {
		s.Require().NoError(s.store.SaveCandidate(ctx, c))
	}

	got, err := s.store.ListCandidatesInDisposition(ctx, lifecycle.DispositionQueuedForQC, cutoff, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("c-40h", got[0].ID)
	s.Equal("c-30h", got[1].ID)

	orphans, err := s.store.ListCandidatesWithoutBot(ctx, lifecycle.DispositionQueuedForQC, cutoff, 0)
	s.Require().NoError(err)
	s.Require().Len(orphans, 1)
	s.Equal("c-40h", orphans[0].ID)

	s.Require().NoError(s.store.CompareAndSwapDisposition(ctx, "c-40h",
		lifecycle.DispositionQueuedForQC, lifecycle.DispositionReady, s.now))
	err = s.store.CompareAndSwapDisposition(ctx, "c-40h",
		lifecycle.DispositionQueuedForQC, lifecycle.DispositionReady, s.now)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestVerificationJoins() {
	ctx := context.Background()
	s.Require().NoError(s.store.SaveCandidate(ctx, lifecycle.Candidate{ID: "c-rej", Disposition: lifecycle.DispositionRejected, UpdatedAt: s.now}))
	s.Require().NoError(s.store.SaveCandidate(ctx, lifecycle.Candidate{ID: "c-q", Disposition: lifecycle.DispositionQueued, UpdatedAt: s.now}))
	s.Require().NoError(s.store.SaveVerification(ctx, lifecycle.Verification{
		ID: "v1", CandidateID: "c-rej", Status: lifecycle.VerificationQueued, UpdatedAt: s.now,
	}))
	s.Require().NoError(s.store.SaveVerification(ctx, lifecycle.Verification{
		ID: "v2", CandidateID: "c-q", Status: lifecycle.VerificationCompleted, Passed: true, UpdatedAt: s.now,
	}))

	queued, err := s.store.ListQueuedVerifications(ctx,
		[]lifecycle.Disposition{lifecycle.DispositionRejected, lifecycle.DispositionMerged}, 10)
	s.Require().NoError(err)
	s.Require().Len(queued, 1)
	s.Equal("v1", queued[0].Verification.ID)
	s.Equal(lifecycle.DispositionRejected, queued[0].Candidate.Disposition)

	verified, err := s.store.ListVerifiedNotAdvanced(ctx, []lifecycle.Disposition{lifecycle.DispositionQueued}, 10)
	s.Require().NoError(err)
	s.Require().Len(verified, 1)
	s.Equal("c-q", verified[0].Candidate.ID)

	s.Require().NoError(s.store.UpdateVerificationStatus(ctx, "v1", lifecycle.VerificationCancelled, false, s.now))
	queued, err = s.store.ListQueuedVerifications(ctx, []lifecycle.Disposition{lifecycle.DispositionRejected}, 10)
	s.Require().NoError(err)
	s.Empty(queued)

	err = s.store.UpdateVerificationStatus(ctx, "missing", lifecycle.VerificationCancelled, false, s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestExpiredDeadlineIsTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err := s.store.FindBot(ctx, "bot-1")
	s.ErrorIs(err, sentinel.ErrTimeout)
}
