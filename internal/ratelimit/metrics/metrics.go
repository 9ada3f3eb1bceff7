package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision labels.
const (
	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
)

// Metrics tracks limiter decisions and store health.
type Metrics struct {
	Decisions    *prometheus.CounterVec
	StoreErrors  prometheus.Counter
	FallbackOpen prometheus.Gauge
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkid_ratelimit_decisions_total",
			Help: "Rate limit checks by decision",
		}, []string{"decision"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "linkid_ratelimit_store_errors_total",
			Help: "Failed calls to the primary rate limit store",
		}),
		FallbackOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "linkid_ratelimit_fallback_active",
			Help: "1 while the in-memory fallback serves rate limit checks",
		}),
	}
}

func (m *Metrics) IncDecision(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.Decisions.WithLabelValues(DecisionAllowed).Inc()
		return
	}
	m.Decisions.WithLabelValues(DecisionDenied).Inc()
}

func (m *Metrics) IncStoreError() {
	if m != nil {
		m.StoreErrors.Inc()
	}
}

func (m *Metrics) SetFallback(active bool) {
	if m == nil {
		return
	}
	if active {
		m.FallbackOpen.Set(1)
		return
	}
	m.FallbackOpen.Set(0)
}
