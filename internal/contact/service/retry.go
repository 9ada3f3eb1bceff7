package service

import (
	"context"
	"time"

	dErrors "linkid/pkg/domain-errors"
	"linkid/pkg/platform/sentinel"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 20 * time.Millisecond
)

// withRetry reruns fn from scratch while it fails with a transient store
// error. Partial progress is never resumed: fn owns a whole transaction.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !sentinel.IsTransient(err) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}

		s.metrics.IncRetry()
		s.logger.WarnContext(ctx, "retrying identify after transient store failure",
			"attempt", attempt,
			"error", err,
		)

		timer := time.NewTimer(s.retryBackoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "identify aborted: context cancelled")
		case <-timer.C:
		}
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "contact store unavailable")
}
