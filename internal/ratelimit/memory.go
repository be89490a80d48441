package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps attempt timestamps in process memory. It is safe for concurrent use but does
// not coordinate across processes.
type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	clock    Clock
}

// MemoryOption customises a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source.
func WithClock(clock Clock) MemoryOption {
	return func(l *MemoryLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewMemoryLimiter constructs an in-memory limiter.
func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		attempts: make(map[string][]time.Time),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	if maxAttempts <= 0 || window <= 0 {
		return true, nil
	}

	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := prune(l.attempts[key], window, now)
	if len(recent) >= maxAttempts {
		l.attempts[key] = recent
		return false, nil
	}

	l.attempts[key] = append(recent, now)
	return true, nil
}

// RemainingTime implements Limiter.
func (l *MemoryLimiter) RemainingTime(_ context.Context, key string, window time.Duration) (time.Duration, error) {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := prune(l.attempts[key], window, now)
	if len(recent) == 0 {
		delete(l.attempts, key)
		return 0, nil
	}
	l.attempts[key] = recent
	return remaining(recent[0], window, now), nil
}

// Sweep drops keys whose attempts have all left the window.
func (l *MemoryLimiter) Sweep(window time.Duration) int {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, stamps := range l.attempts {
		if len(prune(stamps, window, now)) == 0 {
			delete(l.attempts, key)
			removed++
		}
	}
	return removed
}

// prune returns the suffix of stamps still inside the window. Stamps are kept in insertion order.
func prune(stamps []time.Time, window time.Duration, now time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && now.Sub(stamps[idx]) >= window {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	kept := make([]time.Time, len(stamps)-idx)
	copy(kept, stamps[idx:])
	return kept
}
