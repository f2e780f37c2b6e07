package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/news-comb/app/metrics"
)

const DefaultSweepInterval = time.Minute

type entry struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window counter per caller key. When a window elapses
// the caller starts over with a fresh window rather than decaying.
type Limiter struct {
	entries map[string]*entry
	now     func() time.Time
	mu      sync.Mutex
}

// New creates a limiter. A nil clock means time.Now.
func New(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}

	return &Limiter{
		entries: make(map[string]*entry),
		now:     now,
	}
}

// Admit records a request from key and reports whether it is within limit
// requests per window. A denied request leaves the counter unchanged.
func (l *Limiter) Admit(key string, limit int, window time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		if limit <= 0 {
			return Decision{Allowed: false, Limit: limit, ResetAt: now.Add(window)}
		}
		e = &entry{count: 1, resetAt: now.Add(window)}
		l.entries[key] = e
		return Decision{Allowed: true, Limit: limit, Remaining: limit - 1, ResetAt: e.resetAt}
	}

	if e.count >= limit {
		return Decision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: e.resetAt}
	}

	e.count++

	return Decision{Allowed: true, Limit: limit, Remaining: limit - e.count, ResetAt: e.resetAt}
}

// Sweep drops every entry whose window has elapsed and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}

	metrics.RateLimitEntries.Set(float64(len(l.entries)))

	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Run sweeps stale entries every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				slog.Debug("Rate limit entries swept", "removed", removed, "remaining", l.Len())
			}
		case <-ctx.Done():
			return
		}
	}
}
