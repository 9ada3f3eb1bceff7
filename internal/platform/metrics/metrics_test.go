package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("/identify", http.MethodPost, "200", 15*time.Millisecond)
	m.ObserveRequest("/identify", http.MethodPost, "400", time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.RequestDuration))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveRequest("/", http.MethodGet, "200", time.Millisecond) })
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveRequest("/contacts", http.MethodGet, "200", time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `linkid_http_request_duration_seconds_count{method="GET",route="/contacts",status="200"} 1`)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
