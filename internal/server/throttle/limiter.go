// Package throttle limits repeated failed login attempts per client key.
package throttle

import (
	"context"
	"time"
)

// Limiter counts failures per key and locks a key out once too many
// failures happen inside the window.
type Limiter interface {
	// Allow returns how long key is still locked out. Zero means the
	// request may proceed.
	Allow(ctx context.Context, key string) (time.Duration, error)
	// Fail records a failed attempt for key.
	Fail(ctx context.Context, key string) error
	// Reset forgets all failures for key.
	Reset(ctx context.Context, key string) error
}

// Policy is the lockout rule shared by all limiters.
type Policy struct {
	Attempts int
	Window   time.Duration
	Lockout  time.Duration
}

var DefaultPolicy = Policy{
	Attempts: 5,
	Window:   time.Minute,
	Lockout:  5 * time.Minute,
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultPolicy.Attempts
	}
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.Lockout <= 0 {
		p.Lockout = DefaultPolicy.Lockout
	}
	return p
}
