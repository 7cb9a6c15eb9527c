// Package ratelimit implements a fixed-window per-key request limiter.
//
// The window is fixed, not sliding: a caller can burst up to the limit
// at the end of one window and again at the start of the next. That is
// an accepted tradeoff for connection attempts, which are cheap to
// admit and expensive only when they churn rooms.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter tracks request counts per key within a fixed window.
// Safe for concurrent use. State is process-local: in a horizontally
// scaled deployment each instance enforces its own ceiling.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a limiter admitting at most limit requests per key per window.
// A limit <= 0 disables limiting.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*entry),
	}
}

// Allow reports whether a request for key is admitted. When rejected,
// retryAfter is the time remaining until the window resets.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists || now.After(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.window)}
		return true, 0
	}

	e.count++
	if e.count > l.limit {
		return false, e.resetAt.Sub(now)
	}
	return true, 0
}

// Run evicts expired windows every interval until ctx is cancelled,
// bounding memory growth for one-off keys.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.purge(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (l *Limiter) purge(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
		}
	}
}

// Len reports the number of tracked keys. Used in tests.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
