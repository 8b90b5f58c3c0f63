package server

import (
	"sync"
	"time"
)

// rateLimiter is a per-user sliding-window request limiter.
type rateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// allow records one request for userID and reports whether it fits the
// window.
func (l *rateLimiter) allow(userID string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.requests[userID][:0]
	for _, t := range l.requests[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.maxRequests {
		l.requests[userID] = recent
		return false
	}
	l.requests[userID] = append(recent, now)
	return true
}
