package notification

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/modubeauty/modu/internal/logging"
)

// Timer drives the periodic outbox drain.
type Timer struct {
	worker   *Worker
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates the drain timer.
func NewTimer(worker *Worker, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Timer{worker: worker, interval: interval, stop: make(chan struct{})}
}

// Running reports whether the drain loop is active.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the drain loop. Call in a goroutine.
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
			t.safeDrain(ctx)
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

func (t *Timer) safeDrain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("panic in notification drain", "panic", fmt.Sprint(r))
		}
	}()
	sent, err := t.worker.Drain(ctx)
	if err != nil {
		logging.L(ctx).Warn("notification drain failed", "error", err)
		return
	}
	if sent > 0 {
		logging.L(ctx).Info("notifications delivered", "count", sent)
	}
}
