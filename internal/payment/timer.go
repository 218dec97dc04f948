package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/modubeauty/modu/internal/logging"
)

// Timer drives the reconcile sweep for payments the gateway never called
// back about.
type Timer struct {
	orch     *Orchestrator
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates the reconcile timer.
func NewTimer(orch *Orchestrator, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Timer{orch: orch, interval: interval, stop: make(chan struct{})}
}

// Running reports whether the sweep loop is active.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
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
			t.safeReconcile(ctx)
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

func (t *Timer) safeReconcile(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("panic in payment reconcile", "panic", fmt.Sprint(r))
		}
	}()
	moved, err := t.orch.Reconcile(ctx)
	if err != nil {
		logging.L(ctx).Warn("payment reconcile failed", "error", err)
		return
	}
	if moved > 0 {
		logging.L(ctx).Info("reconciled payments", "count", moved)
	}
}
