// Package ratelimit provides the windowed request limiter and the admin IP
// gate. Counters live in memory for a single instance or in Redis when the
// API runs behind a balancer.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultWindow and DefaultMaxRequests match the config defaults.
	DefaultWindow      = 15 * time.Minute
	DefaultMaxRequests = 100

	// baseBlock doubles per repeated violation, capped at maxBlock.
	baseBlock = time.Minute
	maxBlock  = time.Hour

	// violationTTL is how long a subject's violation streak is remembered.
	violationTTL = time.Hour
)

// CounterStore keeps windowed counters and block marks with TTLs.
type CounterStore interface {
	// Incr increments key, arming ttl on first increment, and returns the
	// count within the current window.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// GetBlock returns the block deadline for key, if one is set.
	GetBlock(ctx context.Context, key string) (time.Time, bool, error)
	// SetBlock marks key blocked until the deadline.
	SetBlock(ctx context.Context, key string, until time.Time, ttl time.Duration) error
}

// Limiter applies a windowed limit per (subject, routeFamily).
type Limiter struct {
	store  CounterStore
	window time.Duration
	max    int64
	now    func() time.Time
}

// NewLimiter creates a limiter over the given counter store.
func NewLimiter(store CounterStore, window time.Duration, max int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	return &Limiter{store: store, window: window, max: int64(max), now: time.Now}
}

// Decision is the limiter's verdict for one request.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Violations int64
}

// Allow counts the request and reports whether it may proceed. A request
// over the limit starts (or extends) a block: each repeated violation
// doubles the block window up to an hour.
func (l *Limiter) Allow(ctx context.Context, subject, family string) (Decision, error) {
	now := l.now().UTC()
	blockKey := fmt.Sprintf("rl:block:%s:%s", subject, family)

	if until, ok, err := l.store.GetBlock(ctx, blockKey); err != nil {
		return Decision{}, fmt.Errorf("read block: %w", err)
	} else if ok && until.After(now) {
		return Decision{Allowed: false, RetryAfter: until.Sub(now)}, nil
	}

	countKey := fmt.Sprintf("rl:cnt:%s:%s", subject, family)
	count, err := l.store.Incr(ctx, countKey, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("incr counter: %w", err)
	}
	if count <= l.max {
		return Decision{Allowed: true}, nil
	}

	violations, err := l.store.Incr(ctx, fmt.Sprintf("rl:vio:%s", subject), violationTTL)
	if err != nil {
		return Decision{}, fmt.Errorf("incr violations: %w", err)
	}
	block := baseBlock
	for i := int64(1); i < violations && block < maxBlock; i++ {
		block *= 2
	}
	if block > maxBlock {
		block = maxBlock
	}
	until := now.Add(block)
	if err := l.store.SetBlock(ctx, blockKey, until, block); err != nil {
		return Decision{}, fmt.Errorf("set block: %w", err)
	}
	return Decision{Allowed: false, RetryAfter: block, Violations: violations}, nil
}
