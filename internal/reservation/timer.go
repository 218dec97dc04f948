package reservation

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/modubeauty/modu/internal/logging"
)

// Timer drives the auto-progress sweep: expiring stale requests and
// flagging no-shows.
type Timer struct {
	service  *Service
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates the auto-progress timer.
func NewTimer(service *Service, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Timer{service: service, interval: interval, stop: make(chan struct{})}
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
			t.safeSweep(ctx)
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

func (t *Timer) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("panic in reservation auto-progress", "panic", fmt.Sprint(r))
		}
	}()
	moved, err := t.service.AutoProgress(ctx)
	if err != nil {
		logging.L(ctx).Warn("reservation auto-progress failed", "error", err)
		return
	}
	if moved > 0 {
		logging.L(ctx).Info("auto-progressed reservations", "count", moved)
	}
}
