package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for identify requests.
const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeUnchanged        = "unchanged"
)

// Metrics provides observability for the reconciliation engine.
type Metrics struct {
	// Identify outcomes by kind of write performed
	IdentifyOutcome *prometheus.CounterVec

	// Identify failures by domain error code
	IdentifyErrors *prometheus.CounterVec

	// Cluster merges and the records they relinked
	Merges           prometheus.Counter
	ContactsRelinked prometheus.Counter

	// Whole-transaction retries after transient store failures
	Retries prometheus.Counter

	IdentifyLatency prometheus.Histogram

	// Outbox relay progress
	OutboxPublished prometheus.Counter
	OutboxFailures  prometheus.Counter
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IdentifyOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkid_identify_outcomes_total",
			Help: "Total identify requests by outcome",
		}, []string{"outcome"}),

		IdentifyErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkid_identify_errors_total",
			Help: "Total failed identify requests by error code",
		}, []string{"code"}),

		Merges: f.NewCounter(prometheus.CounterOpts{
			Name: "linkid_cluster_merges_total",
			Help: "Total identify requests that merged or repaired cluster links",
		}),

		ContactsRelinked: f.NewCounter(prometheus.CounterOpts{
			Name: "linkid_contacts_relinked_total",
			Help: "Total contacts demoted or repointed to an older primary",
		}),

		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "linkid_identify_retries_total",
			Help: "Total identify transactions retried after transient store failures",
		}),

		IdentifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkid_identify_duration_seconds",
			Help:    "Duration of identify requests including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "linkid_outbox_published_total",
			Help: "Total contact events relayed to the broker",
		}),

		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "linkid_outbox_failures_total",
			Help: "Total outbox relay batches that failed",
		}),
	}
}

// IncrementOutcome records a successful identify outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.IdentifyOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementError records a failed identify by error code.
func (m *Metrics) IncrementError(code string) {
	if m != nil {
		m.IdentifyErrors.WithLabelValues(code).Inc()
	}
}

// ObserveMerge records a merge that relinked n contacts.
func (m *Metrics) ObserveMerge(n int) {
	if m != nil && n > 0 {
		m.Merges.Inc()
		m.ContactsRelinked.Add(float64(n))
	}
}

// IncRetry records a transaction retry.
func (m *Metrics) IncRetry() {
	if m != nil {
		m.Retries.Inc()
	}
}

// ObserveIdentifyLatency records the total identify duration.
func (m *Metrics) ObserveIdentifyLatency(d time.Duration) {
	if m != nil {
		m.IdentifyLatency.Observe(d.Seconds())
	}
}

// AddOutboxPublished records n relayed events.
func (m *Metrics) AddOutboxPublished(n int) {
	if m != nil && n > 0 {
		m.OutboxPublished.Add(float64(n))
	}
}

// IncOutboxFailure records a failed relay batch.
func (m *Metrics) IncOutboxFailure() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}
