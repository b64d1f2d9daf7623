package bucket

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 10
	testWindow = time.Minute
)

type InMemoryBucketStoreSuite struct {
	suite.Suite
	store *InMemoryBucketStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.now = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	s.store = NewInMemoryBucketStore(WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *InMemoryBucketStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		result, err := s.store.Allow(s.ctx, "key:first", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit, result.Limit)
		s.Equal(testLimit-1, result.Remaining)
	})

	s.Run("request over limit denied", func() {
		for range testLimit {
			result, err := s.store.Allow(s.ctx, "key:over", testLimit, testWindow)
			s.Require().NoError(err)
			s.True(result.Allowed)
		}
		result, err := s.store.Allow(s.ctx, "key:over", testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(60, result.RetryAfter)
	})

	s.Run("window slides", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "key:slide", testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.now = s.now.Add(testWindow + time.Second)
		result, err := s.store.Allow(s.ctx, "key:slide", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("keys are independent", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "key:a", testLimit, testWindow)
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(s.ctx, "key:b", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("reset clears counter", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "key:reset", testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.Require().NoError(s.store.Reset(s.ctx, "key:reset"))
		result, err := s.store.Allow(s.ctx, "key:reset", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}

func (s *InMemoryBucketStoreSuite) TestConcurrentAllow() {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(s.ctx, "key:concurrent", testLimit, testWindow)
			s.NoError(err)
			if result != nil && result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(testLimit, allowed)
}

func (s *InMemoryBucketStoreSuite) TestIdleBucketsAreDropped() {
	for i := range 100 {
		_, err := s.store.Allow(s.ctx, fmt.Sprintf("key:idle:%d", i), testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.Equal(100, s.store.Len())

	s.now = s.now.Add(testWindow + time.Second)
	result, err := s.store.Allow(s.ctx, "key:fresh", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(1, s.store.Len(), "only the bucket that is still inside its window survives")

	s.Run("active buckets are kept", func() {
		_, err := s.store.Allow(s.ctx, "key:active", testLimit, testWindow)
		s.Require().NoError(err)
		s.now = s.now.Add(testWindow / 2)
		_, err = s.store.Allow(s.ctx, "key:active", testLimit, testWindow)
		s.Require().NoError(err)
		s.Equal(2, s.store.Len())
	})
}

func (s *InMemoryBucketStoreSuite) TestZeroLimitLeavesNoBucket() {
	result, err := s.store.Allow(s.ctx, "key:zero", 0, testWindow)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(0, s.store.Len())
}
