// Package requesttime pins one "now" per HTTP request so every timestamp the
// request writes (createdAt, updatedAt, outbox rows) is identical.
package requesttime

import (
	"net/http"
	"time"

	"linkid/pkg/requestcontext"
)

// Middleware captures the clock once at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock is Middleware with an injectable clock.
func MiddlewareWithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
