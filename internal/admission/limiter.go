// Package admission implements the sliding-window request limiter that gates
// task creation.
//
// State is process-local. Running N instances behind a load balancer
// multiplies the effective limit by N; sharing the window would need a common
// counter store and is deliberately not done here.
package admission

import (
	"sync"
	"time"
)

// Limiter tracks accepted request timestamps per key.
type Limiter struct {
	mu      sync.Mutex
	enabled bool
	now     func() time.Time
	windows map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(enabled bool, opts ...Option) *Limiter {
	l := &Limiter{
		enabled: enabled,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// Allow records a request for key if fewer than maxRequests were accepted in
// the trailing window. It returns whether the request is admitted and how many
// requests remain in the window.
func (l *Limiter) Allow(key string, maxRequests int, window time.Duration) (bool, int) {
	if !l.enabled {
		return true, maxRequests
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := prune(l.windows[key], now.Add(-window))

	if len(kept) >= maxRequests {
		l.windows[key] = kept
		return false, 0
	}

	kept = append(kept, now)
	l.windows[key] = kept
	return true, maxRequests - len(kept)
}

// Purge drops keys with no request newer than window. Run it periodically so
// idle clients do not accumulate.
func (l *Limiter) Purge(window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-window)
	removed := 0
	for key, stamps := range l.windows {
		kept := prune(stamps, cutoff)
		if len(kept) == 0 {
			delete(l.windows, key)
			removed++
			continue
		}
		l.windows[key] = kept
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// order, so the survivors are a suffix.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[i:]...)
}
