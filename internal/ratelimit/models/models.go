package models

import (
	"strings"
	"time"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds; set only when not allowed
	Degraded   bool
}

// Window is a counter snapshot returned by a window store after an increment.
type Window struct {
	Count   int64
	ResetAt time.Time
}

// SanitizeKeySegment escapes the ':' delimiter so a caller-controlled value
// cannot address a neighbouring bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// IPKey is the bucket key for one client IP on one route class.
func IPKey(class, ip string) string {
	return "ratelimit:" + SanitizeKeySegment(class) + ":ip:" + SanitizeKeySegment(ip)
}
