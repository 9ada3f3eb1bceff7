// Package service decides whether a caller may proceed under a fixed-window
// request limit.
//
// Counters live in a primary WindowStore (Redis when configured). Repeated
// primary failures open a circuit breaker and checks are served from an
// in-memory fallback until the primary recovers; results served that way are
// marked Degraded.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"linkid/internal/ratelimit/metrics"
	"linkid/internal/ratelimit/models"
	"linkid/pkg/platform/circuit"
)

// WindowStore increments fixed-window counters.
type WindowStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (models.Window, error)
}

// Limiter enforces limit requests per window per key.
type Limiter struct {
	primary  WindowStore
	fallback WindowStore
	breaker  *circuit.Breaker
	limit    int
	window   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithFallback sets the store used while the primary is failing.
func WithFallback(store WindowStore) Option {
	return func(l *Limiter) {
		l.fallback = store
	}
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		if b != nil {
			l.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New creates a Limiter allowing limit requests per window.
func New(primary WindowStore, limit int, window time.Duration, opts ...Option) (*Limiter, error) {
	if primary == nil {
		return nil, errors.New("rate limit store is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limit and window must be positive")
	}
	l := &Limiter{
		primary: primary,
		breaker: circuit.New("ratelimit"),
		limit:   limit,
		window:  window,
		logger:  slog.New(slog.DiscardHandler),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check counts one request against key and reports whether it is allowed.
// An error is returned only when neither store could answer.
func (l *Limiter) Check(ctx context.Context, key string) (*models.Result, error) {
	w, degraded, err := l.increment(ctx, key)
	if err != nil {
		return nil, err
	}

	res := &models.Result{
		Allowed:  w.Count <= int64(l.limit),
		Limit:    l.limit,
		ResetAt:  w.ResetAt,
		Degraded: degraded,
	}
	if res.Allowed {
		res.Remaining = l.limit - int(w.Count)
	} else {
		res.RetryAfter = max(1, int(w.ResetAt.Sub(l.clock()).Round(time.Second)/time.Second))
	}
	l.metrics.IncDecision(res.Allowed)
	return res, nil
}

func (l *Limiter) increment(ctx context.Context, key string) (models.Window, bool, error) {
	if l.fallback != nil && l.breaker.IsOpen() {
		// Probe the primary so the breaker can close once it recovers.
		if w, err := l.primary.Increment(ctx, key, l.window); err == nil {
			if usePrimary, change := l.breaker.RecordSuccess(); usePrimary {
				l.onChange(change)
				return w, false, nil
			}
		} else {
			l.metrics.IncStoreError()
			l.breaker.RecordFailure()
		}
		w, err := l.fallback.Increment(ctx, key, l.window)
		return w, true, err
	}

	w, err := l.primary.Increment(ctx, key, l.window)
	if err == nil {
		l.breaker.RecordSuccess()
		return w, false, nil
	}

	l.metrics.IncStoreError()
	useFallback, change := l.breaker.RecordFailure()
	l.onChange(change)
	l.logger.WarnContext(ctx, "rate limit store failed", "error", err, "fallback", useFallback && l.fallback != nil)
	if l.fallback == nil {
		return models.Window{}, false, err
	}
	// Counted locally while the breaker is still closed as well.
	fw, ferr := l.fallback.Increment(ctx, key, l.window)
	return fw, true, ferr
}

func (l *Limiter) onChange(change circuit.StateChange) {
	switch {
	case change.Opened:
		l.logger.Warn("rate limit store unhealthy, serving from in-memory fallback", "breaker", l.breaker.Name())
		l.metrics.SetFallback(true)
	case change.Closed:
		l.logger.Info("rate limit store recovered", "breaker", l.breaker.Name())
		l.metrics.SetFallback(false)
	}
}
