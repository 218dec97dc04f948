package points

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/modubeauty/modu/internal/logging"
)

// Timer periodically expires point entries past their expiresAt.
type Timer struct {
	ledger   *Ledger
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates the point-expiry sweep.
func NewTimer(ledger *Ledger, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Timer{ledger: ledger, interval: interval, stop: make(chan struct{})}
}

// Running reports whether the sweep loop is active.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the sweep loop. Call in a goroutine. Ticks carry a little
// jitter so multiple instances don't sweep in lockstep.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	for {
		jitter := time.Duration(rand.Int63n(int64(t.interval) / 10))
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-time.After(t.interval + jitter):
			t.safeExpire(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeExpire(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("panic in points expiry sweep", "panic", fmt.Sprint(r))
		}
	}()
	n, err := t.ledger.Expire(ctx)
	if err != nil {
		logging.L(ctx).Warn("points expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		logging.L(ctx).Info("expired point entries", "count", n)
	}
}
