package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkid/internal/ratelimit/metrics"
	"linkid/internal/ratelimit/models"
	"linkid/internal/ratelimit/store/window"
	"linkid/pkg/platform/circuit"
)

// flakyStore delegates to an in-memory store unless failing is set.
type flakyStore struct {
	mu      sync.Mutex
	inner   *window.InMemoryStore
	failing bool
	calls   int
}

func (f *flakyStore) Increment(ctx context.Context, key string, d time.Duration) (models.Window, error) {
	f.mu.Lock()
	f.calls++
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return models.Window{}, errors.New("connection refused")
	}
	return f.inner.Increment(ctx, key, d)
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, 1, time.Second)
	assert.Error(t, err)
	_, err = New(window.NewInMemory(), 0, time.Second)
	assert.Error(t, err)
	_, err = New(window.NewInMemory(), 1, 0)
	assert.Error(t, err)
}

func TestCheckEnforcesLimit(t *testing.T) {
	l, err := New(window.NewInMemory(), 2, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := l.Check(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, 2, res.Limit)

	res, _ = l.Check(ctx, "a")
	assert.True(t, res.Allowed)
	assert.Zero(t, res.Remaining)

	res, _ = l.Check(ctx, "a")
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)
	assert.InDelta(t, 60, res.RetryAfter, 1)

	res, _ = l.Check(ctx, "b")
	assert.True(t, res.Allowed, "other callers keep their own budget")
}

func TestCheckWithoutFallbackReturnsStoreError(t *testing.T) {
	store := &flakyStore{inner: window.NewInMemory(), failing: true}
	l, err := New(store, 5, time.Minute)
	require.NoError(t, err)

	_, err = l.Check(context.Background(), "a")
	assert.Error(t, err)
}

func TestCheckFallsBackAndRecovers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	primary := &flakyStore{inner: window.NewInMemory()}
	l, err := New(primary, 100, time.Minute,
		WithFallback(window.NewInMemory()),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(2))),
		WithMetrics(m),
	)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := l.Check(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Degraded)

	primary.setFailing(true)
	res, err = l.Check(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Degraded, "served by the fallback while the primary fails")
	assert.False(t, l.breaker.IsOpen())

	_, _ = l.Check(ctx, "a")
	assert.True(t, l.breaker.IsOpen())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbackOpen))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.StoreErrors))

	primary.setFailing(false)
	res, _ = l.Check(ctx, "a")
	assert.True(t, res.Degraded, "one success is not enough to close")
	res, _ = l.Check(ctx, "a")
	assert.False(t, res.Degraded)
	assert.False(t, l.breaker.IsOpen())
	assert.Zero(t, testutil.ToFloat64(m.FallbackOpen))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.Decisions.WithLabelValues(metrics.DecisionAllowed)))
}
