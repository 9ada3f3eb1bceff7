// Package window holds fixed-window request counters keyed by bucket.
package window

import (
	"context"
	"sync"
	"time"

	"linkid/internal/ratelimit/models"
)

// InMemoryStore counts requests per key in fixed windows. It is local to the
// process and serves as the fallback when Redis is unreachable.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*counter
	clock   func() time.Time
}

type counter struct {
	count   int64
	resetAt time.Time
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string]*counter),
		clock:   time.Now,
	}
}

// Increment adds one hit to key's current window, opening a new window when
// the previous one has elapsed.
func (s *InMemoryStore) Increment(_ context.Context, key string, window time.Duration) (models.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	c, ok := s.windows[key]
	if !ok || !now.Before(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		s.windows[key] = c
	}
	c.count++
	return models.Window{Count: c.count, ResetAt: c.resetAt}, nil
}

// Sweep drops every elapsed window.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	removed := 0
	for key, c := range s.windows {
		if !now.Before(c.resetAt) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}
