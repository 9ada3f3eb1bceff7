package window

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisWindowStoreSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	store  *RedisStore
	now    time.Time
}

func TestRedisWindowStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisWindowStoreSuite))
}

func (s *RedisWindowStoreSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.store = NewRedis(s.client)
	s.now = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	s.store.clock = func() time.Time { return s.now }
}

func (s *RedisWindowStoreSuite) TearDownTest() {
	s.client.Close()
}

func (s *RedisWindowStoreSuite) TestCountsWithinWindow() {
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		w, err := s.store.Increment(ctx, "ratelimit:identify:ip:1.2.3.4", time.Minute)
		s.Require().NoError(err)
		s.Equal(int64(i), w.Count)
		s.Equal(s.now.Add(time.Minute), w.ResetAt)
	}
	s.Equal(time.Minute, s.mr.TTL("ratelimit:identify:ip:1.2.3.4"))
}

func (s *RedisWindowStoreSuite) TestExpiryIsSetOnlyOnce() {
	ctx := context.Background()
	_, err := s.store.Increment(ctx, "k", time.Minute)
	s.Require().NoError(err)

	s.mr.FastForward(40 * time.Second)
	w, err := s.store.Increment(ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Equal(int64(2), w.Count)
	s.Equal(20*time.Second, s.mr.TTL("k"), "later hits do not extend the window")

	s.mr.FastForward(21 * time.Second)
	w, err = s.store.Increment(ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Equal(int64(1), w.Count, "expired window restarts")
}

func (s *RedisWindowStoreSuite) TestUnavailable() {
	s.mr.Close()
	_, err := s.store.Increment(context.Background(), "k", time.Minute)
	s.Error(err)
}
