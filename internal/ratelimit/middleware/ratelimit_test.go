package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"linkid/internal/ratelimit/models"
	"linkid/pkg/testutil"
)

type stubLimiter struct {
	result *models.Result
	err    error
	keys   []string
}

func (s *stubLimiter) Check(_ context.Context, key string) (*models.Result, error) {
	s.keys = append(s.keys, key)
	return s.result, s.err
}

func serve(mw func(http.Handler) http.Handler) (*httptest.ResponseRecorder, bool) {
	called := false
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	r := testutil.WithClientIP(httptest.NewRequest(http.MethodPost, "/identify", nil), "203.0.113.7")
	return testutil.DoRequest(h, r), called
}

func TestRateLimitAllows(t *testing.T) {
	reset := time.Date(2023, 4, 1, 0, 1, 0, 0, time.UTC)
	limiter := &stubLimiter{result: &models.Result{Allowed: true, Limit: 10, Remaining: 9, ResetAt: reset}}

	rr, called := serve(New(limiter, nil).RateLimit("identify"))

	assert.True(t, called)
	assert.Equal(t, []string{"ratelimit:identify:ip:203.0.113.7"}, limiter.keys)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1680307260", rr.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rr.Header().Get("X-RateLimit-Status"))
}

func TestRateLimitRejects(t *testing.T) {
	limiter := &stubLimiter{result: &models.Result{Allowed: false, Limit: 10, RetryAfter: 42, ResetAt: time.Now(), Degraded: true}}

	rr, called := serve(New(limiter, nil).RateLimit("identify"))

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "42", rr.Header().Get("Retry-After"))
	assert.Equal(t, "degraded", rr.Header().Get("X-RateLimit-Status"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","error_description":"too many requests, retry in 42 seconds"}`, rr.Body.String())
}

func TestRateLimitFailsOpen(t *testing.T) {
	rr, called := serve(New(&stubLimiter{err: errors.New("redis down")}, nil).RateLimit("identify"))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	_, called := serve(New(nil, nil).RateLimit("identify"))
	assert.True(t, called)

	var m *Middleware
	_, called = serve(m.RateLimit("identify"))
	assert.True(t, called)
}

func TestSanitizedKey(t *testing.T) {
	assert.Equal(t, "ratelimit:identify:ip:__1", models.IPKey("identify", "::1"))
}
