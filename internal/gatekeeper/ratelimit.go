package gatekeeper

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-capacity sliding window: at most max calls per
// window. The window is trimmed lazily on each check by dropping timestamps
// older than now minus the window.
type RateLimiter struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	timestamps []time.Time
	now        func() time.Time
}

// NewRateLimiter creates a limiter allowing max calls per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{max: max, window: window, now: time.Now}
}

// Allow records one call attempt and reports whether it fits the window.
// Check-and-record is atomic under the limiter's lock.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	kept := r.timestamps[:0]
	for _, ts := range r.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.timestamps = kept

	if len(r.timestamps) >= r.max {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}
