package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"linkid/internal/ratelimit/models"
)

// RedisStore counts requests per key in Redis so every replica shares one
// window. The first hit of a window sets its expiry.
type RedisStore struct {
	client redis.UniversalClient
	clock  func() time.Time
}

// NewRedis wraps a go-redis client.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, clock: time.Now}
}

// Increment runs INCR, EXPIRE NX and PTTL in one MULTI/EXEC.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (models.Window, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return models.Window{}, fmt.Errorf("increment rate limit window %s: %w", key, err)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	return models.Window{
		Count:   incr.Val(),
		ResetAt: s.clock().Add(remaining),
	}, nil
}
