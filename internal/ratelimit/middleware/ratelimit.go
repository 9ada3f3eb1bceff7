// Package middleware applies the per-IP request limit to HTTP routes.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"linkid/internal/ratelimit/models"
	dErrors "linkid/pkg/domain-errors"
	"linkid/pkg/platform/httputil"
	"linkid/pkg/requestcontext"
)

// Limiter is the check the middleware depends on.
type Limiter interface {
	Check(ctx context.Context, key string) (*models.Result, error)
}

// Middleware rejects callers over their limit with 429.
type Middleware struct {
	limiter Limiter
	logger  *slog.Logger
}

// New creates the middleware. A nil limiter disables limiting.
func New(limiter Limiter, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Middleware{limiter: limiter, logger: logger}
}

// RateLimit limits requests per client IP for the named route class.
// Limiter errors fail open.
func (m *Middleware) RateLimit(class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || m.limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := m.limiter.Check(ctx, models.IPKey(class, ip))
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", ip,
					"class", class,
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests,
					fmt.Sprintf("too many requests, retry in %d seconds", result.RetryAfter)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if result.Degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
}
