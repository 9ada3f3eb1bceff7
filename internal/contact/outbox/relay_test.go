package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"linkid/internal/contact/metrics"
	"linkid/internal/contact/models"
	"linkid/internal/contact/service"
	contactstore "linkid/internal/contact/store/contact"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []models.OutboxEntry
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, entries []models.OutboxEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, entries...)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type RelaySuite struct {
	suite.Suite
	store     *contactstore.InMemory
	publisher *fakePublisher
	metrics   *metrics.Metrics
	relay     *Relay
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.store = contactstore.NewInMemory()
	s.publisher = &fakePublisher{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.relay = NewRelay(s.store, s.publisher,
		WithMetrics(s.metrics),
		WithBatchSize(2),
		WithPollInterval(10*time.Millisecond),
	)
}

func (s *RelaySuite) appendEvents(n int) {
	events := make([]models.Event, n)
	for i := range events {
		events[i] = models.Event{
			Type:        models.EventContactCreated,
			AggregateID: int64(i + 1),
			ContactIDs:  []int64{int64(i + 1)},
			OccurredAt:  time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	err := s.store.RunInTx(context.Background(), func(store service.Store) error {
		return store.AppendEvents(context.Background(), events)
	})
	s.Require().NoError(err)
}

func (s *RelaySuite) TestDrainPublishesEverythingInBatches() {
	s.appendEvents(5)

	n, err := s.relay.Drain(context.Background())
	s.Require().NoError(err)
	s.Equal(5, n)
	s.Equal(5, s.publisher.count())
	for i, e := range s.publisher.published {
		s.Equal(int64(i+1), e.ID, "entries are published in outbox order")
	}
	for _, e := range s.store.Outbox() {
		s.NotNil(e.PublishedAt)
	}
	s.Equal(float64(5), testutil.ToFloat64(s.metrics.OutboxPublished))
}

func (s *RelaySuite) TestFailedPublishKeepsEntriesPending() {
	s.appendEvents(1)
	s.publisher.err = errors.New("broker unavailable")

	n, err := s.relay.Drain(context.Background())
	s.Error(err)
	s.Zero(n)
	s.Nil(s.store.Outbox()[0].PublishedAt)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.OutboxFailures))

	s.publisher.err = nil
	n, err = s.relay.Drain(context.Background())
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *RelaySuite) TestRunStopsOnCancel() {
	s.appendEvents(3)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.relay.Run(ctx) }()

	s.Eventually(func() bool { return s.publisher.count() == 3 }, time.Second, 5*time.Millisecond)
	s.appendEvents(1)
	s.Eventually(func() bool { return s.publisher.count() == 4 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("relay did not stop")
	}
}

func TestRunLeavesNoGoroutinesBehind(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := contactstore.NewInMemory()
	relay := NewRelay(store, &fakePublisher{}, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
