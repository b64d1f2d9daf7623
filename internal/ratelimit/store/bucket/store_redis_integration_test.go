//go:build integration

package bucket_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/Khrees2412/provepoc/internal/ratelimit/store/bucket"
	"github.com/Khrees2412/provepoc/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
	ctx   context.Context
}

func TestRedisBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = bucket.NewRedisBucketStore(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisBucketStoreSuite) TestFixedWindow() {
	key := "ratelimit:initiate:" + uuid.NewString()

	for i := range 3 {
		result, err := s.store.Allow(s.ctx, key, 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2-i, result.Remaining)
	}

	result, err := s.store.Allow(s.ctx, key, 3, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.GreaterOrEqual(result.RetryAfter, 1)
	s.LessOrEqual(result.RetryAfter, 60)

	ttl, err := s.redis.Client.TTL(s.ctx, key).Result()
	s.Require().NoError(err)
	s.Positive(ttl)
}

func (s *RedisBucketStoreSuite) TestWindowExpires() {
	key := "ratelimit:initiate:" + uuid.NewString()

	result, err := s.store.Allow(s.ctx, key, 1, time.Second)
	s.Require().NoError(err)
	s.True(result.Allowed)
	result, err = s.store.Allow(s.ctx, key, 1, time.Second)
	s.Require().NoError(err)
	s.False(result.Allowed)

	s.Eventually(func() bool {
		r, err := s.store.Allow(s.ctx, key, 1, time.Second)
		return err == nil && r.Allowed
	}, 5*time.Second, 200*time.Millisecond)
}

func (s *RedisBucketStoreSuite) TestReset() {
	key := "ratelimit:initiate:" + uuid.NewString()
	_, err := s.store.Allow(s.ctx, key, 1, time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Reset(s.ctx, key))
	result, err := s.store.Allow(s.ctx, key, 1, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}
