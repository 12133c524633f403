//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stagegate/internal/platform/config"
	"stagegate/internal/platform/redis"
	"stagegate/pkg/testutil/containers"
)

type LeaseSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestLeaseSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(LeaseSuite))
}

func (s *LeaseSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *LeaseSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *LeaseSuite) TestExclusiveUntilReleased() {
	ctx := context.Background()
	a := redis.NewLeaser(s.redis.Client)
	b := redis.NewLeaser(s.redis.Client)

	lease, ok, err := a.TryAcquire(ctx, "reconcile", time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, ok, err = b.TryAcquire(ctx, "reconcile", time.Minute)
	s.Require().NoError(err)
	s.False(ok, "second replica must not get a held lease")

	s.Require().NoError(lease.Release(ctx))
	s.Require().NoError(lease.Release(ctx))

	_, ok, err = b.TryAcquire(ctx, "reconcile", time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *LeaseSuite) TestExpiredLeaseIsNotReleasedByOldHolder() {
	ctx := context.Background()
	a := redis.NewLeaser(s.redis.Client)
	b := redis.NewLeaser(s.redis.Client)

	stale, ok, err := a.TryAcquire(ctx, "invariants", 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().True(ok)
	time.Sleep(150 * time.Millisecond)

	_, ok, err = b.TryAcquire(ctx, "invariants", time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(stale.Release(ctx))
	_, ok, err = a.TryAcquire(ctx, "invariants", time.Minute)
	s.Require().NoError(err)
	s.False(ok, "stale release must not drop the new holder's lease")
}

func (s *LeaseSuite) TestClientFromConfig() {
	client, err := redis.New(context.Background(), config.RedisConfig{URL: s.redis.URL})
	s.Require().NoError(err)
	s.Require().NotNil(client)
	defer client.Close()
	s.NoError(client.Health(context.Background()))
}
