// Package service implements contact identity reconciliation.
//
// Identify runs three stages inside one store transaction:
//
//   - matching: find live contacts sharing the incoming email or phone
//   - resolving: expand matches to whole clusters, elect the earliest
//     record as primary and relink every other record onto it
//   - evidence: append one secondary when the request carries a value the
//     cluster has not seen
//
// The response is a projection of the committed cluster.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"linkid/internal/contact/metrics"
	"linkid/internal/contact/models"
	dErrors "linkid/pkg/domain-errors"
	"linkid/pkg/requestcontext"
)

// Service reconciles contact identity against an injected store.
type Service struct {
	tx           ContactStoreTx
	reader       Reader
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	maxAttempts  int
	retryBackoff time.Duration
	clock        func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMaxAttempts bounds how many times a transaction is tried.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the base delay between attempts; attempt n waits n times it.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.retryBackoff = d
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock sets the clock that stamps inserted and relinked records.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs the reconciliation service.
func New(tx ContactStoreTx, reader Reader, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, errors.New("contact store transaction is required")
	}
	if reader == nil {
		return nil, errors.New("contact reader is required")
	}
	s := &Service{
		tx:           tx,
		reader:       reader,
		logger:       slog.New(slog.DiscardHandler),
		tracer:       otel.Tracer("linkid/internal/contact/service"),
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// result is what one committed reconciliation produced.
type result struct {
	identity *models.Identity
	created  *models.Contact
	relinked []int64
	outcome  string
}

// Identify reconciles the incoming email/phone pair and returns the
// consolidated identity of the cluster it belongs to.
func (s *Service) Identify(ctx context.Context, req models.IdentifyRequest) (*models.Identity, error) {
	start := time.Now()
	requestID := requestcontext.RequestID(ctx)

	req, err := normalizeRequest(req)
	if err != nil {
		s.metrics.IncrementError(string(dErrors.CodeOf(err)))
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "contact.Identify")
	defer span.End()

	var res *result
	err = s.withRetry(ctx, func() error {
		return s.tx.RunInTx(ctx, func(store Store) error {
			r, err := s.reconcile(ctx, store, req)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	s.metrics.ObserveIdentifyLatency(time.Since(start))
	if err != nil {
		err = translateError(err)
		code := dErrors.CodeOf(err)
		s.metrics.IncrementError(string(code))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		s.logger.ErrorContext(ctx, "identify failed",
			"request_id", requestID,
			"code", code,
			"error", err,
		)
		return nil, err
	}

	s.metrics.IncrementOutcome(res.outcome)
	s.metrics.ObserveMerge(len(res.relinked))
	span.SetAttributes(
		attribute.Int64("contact.primary_id", res.identity.PrimaryContactID),
		attribute.String("contact.outcome", res.outcome),
		attribute.Int("contact.relinked", len(res.relinked)),
	)

	attrs := []any{
		"request_id", requestID,
		"primary_contact_id", res.identity.PrimaryContactID,
		"outcome", res.outcome,
		"duration_ms", time.Since(start).Milliseconds(),
		"since_arrival_ms", time.Since(requestcontext.Now(ctx)).Milliseconds(),
	}
	if res.created != nil {
		attrs = append(attrs, "created_contact_id", res.created.ID)
	}
	if len(res.relinked) > 0 {
		attrs = append(attrs, "relinked_contact_ids", res.relinked)
	}
	s.logger.InfoContext(ctx, "contact identified", attrs...)

	return res.identity, nil
}

// reconcile is one attempt of the whole operation against a transactional store.
func (s *Service) reconcile(ctx context.Context, store Store, req models.IdentifyRequest) (*result, error) {
	requestID := requestcontext.RequestID(ctx)

	matches, err := match(ctx, store, req)
	if err != nil {
		return nil, err
	}
	// Read once the value locks are held: a request that waited behind a
	// writer must not stamp rows earlier than the rows it observes.
	now := s.now()

	if len(matches) == 0 {
		created, err := createPrimary(ctx, store, req, now)
		if err != nil {
			return nil, err
		}
		events := []models.Event{{
			Type:        models.EventContactCreated,
			AggregateID: created.ID,
			ContactIDs:  []int64{created.ID},
			RequestID:   requestID,
			OccurredAt:  now,
		}}
		if err := store.AppendEvents(ctx, events); err != nil {
			return nil, fmt.Errorf("append contact events: %w", err)
		}
		return &result{
			identity: assembleIdentity(created, []*models.Contact{created}),
			created:  created,
			outcome:  metrics.OutcomeCreatedPrimary,
		}, nil
	}

	cluster, err := resolve(ctx, store, req, matches, now)
	if err != nil {
		return nil, err
	}

	created, err := appendEvidence(ctx, store, cluster, req, now)
	if err != nil {
		return nil, err
	}

	var events []models.Event
	if len(cluster.relinked) > 0 {
		events = append(events, models.Event{
			Type:             models.EventContactsLinked,
			AggregateID:      cluster.primary.ID,
			ContactIDs:       cluster.relinked,
			MergedPrimaryIDs: cluster.demoted,
			RequestID:        requestID,
			OccurredAt:       now,
		})
	}
	outcome := metrics.OutcomeUnchanged
	members := cluster.members
	if created != nil {
		outcome = metrics.OutcomeCreatedSecondary
		members = append(members, created)
		events = append(events, models.Event{
			Type:        models.EventContactCreated,
			AggregateID: cluster.primary.ID,
			ContactIDs:  []int64{created.ID},
			RequestID:   requestID,
			OccurredAt:  now,
		})
	}
	if len(events) > 0 {
		if err := store.AppendEvents(ctx, events); err != nil {
			return nil, fmt.Errorf("append contact events: %w", err)
		}
	}

	return &result{
		identity: assembleIdentity(cluster.primary, members),
		created:  created,
		relinked: cluster.relinked,
		outcome:  outcome,
	}, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

// ListContacts returns every persisted contact, newest first.
func (s *Service) ListContacts(ctx context.Context) ([]*models.Contact, error) {
	contacts, err := s.reader.ListAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "list contacts failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contacts")
	}
	return contacts, nil
}

// translateError keeps coded errors and hides everything else behind an
// internal error.
func translateError(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "identify timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to identify contact")
}
