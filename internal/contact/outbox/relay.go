// Package outbox relays committed contact events from the store's outbox to
// the message broker. Delivery is at least once: an entry is marked published
// only after the broker acknowledged it.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"linkid/internal/contact/metrics"
	"linkid/internal/contact/models"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Store hands out unpublished outbox entries.
type Store interface {
	ProcessOutbox(ctx context.Context, limit int, fn func(ctx context.Context, entries []models.OutboxEntry) error) (int, error)
}

// Publisher delivers a batch of events to the broker.
type Publisher interface {
	Publish(ctx context.Context, entries []models.OutboxEntry) error
}

// Relay polls the outbox and publishes what it finds.
type Relay struct {
	store        Store
	publisher    Publisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
	batchSize    int
}

// Option configures the Relay.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithPollInterval sets how long the relay sleeps when the outbox is drained.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithBatchSize bounds how many entries are published per round trip.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewRelay constructs a relay.
func NewRelay(store Store, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:        store,
		publisher:    publisher,
		logger:       slog.New(slog.DiscardHandler),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. Failed batches are logged and retried
// on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "outbox relay started",
		"poll_interval", r.pollInterval.String(),
		"batch_size", r.batchSize,
	)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WarnContext(ctx, "outbox relay batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Drain publishes batches until the outbox holds fewer than a full batch and
// returns how many entries were published.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.RelayOnce(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

// RelayOnce publishes at most one batch.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.store.ProcessOutbox(ctx, r.batchSize, r.publisher.Publish)
	if err != nil {
		r.metrics.IncOutboxFailure()
		return 0, err
	}
	if n > 0 {
		r.metrics.AddOutboxPublished(n)
		r.logger.DebugContext(ctx, "outbox batch published", "count", n)
	}
	return n, nil
}
