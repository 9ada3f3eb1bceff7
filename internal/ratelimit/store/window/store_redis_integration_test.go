//go:build integration

package window

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkid/pkg/testutil/containers"
)

func TestRedisStoreAgainstRedis7(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedis(rc.Client)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		w, err := store.Increment(ctx, "ratelimit:identify:ip:10.0.0.1", 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(i), w.Count)
	}

	ttl, err := rc.Client.PTTL(ctx, "ratelimit:identify:ip:10.0.0.1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 2*time.Second)

	require.Eventually(t, func() bool {
		w, err := store.Increment(ctx, "ratelimit:identify:ip:10.0.0.1", 2*time.Second)
		return err == nil && w.Count == 1
	}, 5*time.Second, 250*time.Millisecond)

	require.NoError(t, rc.FlushAll(ctx))
}
