package throttle

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold bounds how many idle entries are kept before Fail prunes.
const sweepThreshold = 4096

type entry struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// MemoryLimiter keeps counters in process memory. Counters are not shared
// between server instances.
type MemoryLimiter struct {
	mu      sync.Mutex
	policy  Policy
	entries map[string]*entry
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(p Policy) *MemoryLimiter {
	return &MemoryLimiter{
		policy:  p.withDefaults(),
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return 0, nil
	}
	if left := e.lockedUntil.Sub(l.now()); left > 0 {
		return left, nil
	}
	return 0, nil
}

func (l *MemoryLimiter) Fail(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.entries) >= sweepThreshold {
		l.sweep(now)
	}

	e, ok := l.entries[key]
	if !ok || now.Sub(e.windowStart) > l.policy.Window {
		e = &entry{windowStart: now}
		l.entries[key] = e
	}

	e.failures++
	if e.failures >= l.policy.Attempts {
		e.lockedUntil = now.Add(l.policy.Lockout)
		e.failures = 0
		e.windowStart = now
	}
	return nil
}

func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)
	return nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for k, e := range l.entries {
		if now.After(e.lockedUntil) && now.Sub(e.windowStart) > l.policy.Window {
			delete(l.entries, k)
		}
	}
}
