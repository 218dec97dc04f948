package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/metrics"
)

const (
	writerChanSize  = 4096
	writerBatchSize = 100
	writerFlushMs   = 500
)

// writerMsg carries exactly one of the two event kinds.
type writerMsg struct {
	audit    *AuditEvent
	security *SecurityEvent
}

// Writer asynchronously batches events to the store. Enqueueing never
// blocks a request: when the buffer is full the oldest behavior is to drop
// the new event and count it.
type Writer struct {
	store   Store
	ch      chan writerMsg
	stop    chan struct{}
	running atomic.Bool
	dropped atomic.Int64
}

// NewWriter creates an async event writer.
func NewWriter(store Store) *Writer {
	return &Writer{
		store: store,
		ch:    make(chan writerMsg, writerChanSize),
		stop:  make(chan struct{}),
	}
}

func (w *Writer) enqueue(msg writerMsg) {
	select {
	case w.ch <- msg:
	default:
		w.dropped.Add(1)
		metrics.AuditDroppedTotal.Inc()
	}
}

// Dropped returns the number of events dropped due to a full buffer.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Start drains the channel and flushes batches. Call in a goroutine.
func (w *Writer) Start(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	ticker := time.NewTicker(writerFlushMs * time.Millisecond)
	defer ticker.Stop()

	var audits []*AuditEvent
	var securities []*SecurityEvent

	flush := func() {
		w.flush(audits, securities)
		audits, securities = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.stop:
			flush()
			return
		case msg := <-w.ch:
			if msg.audit != nil {
				audits = append(audits, msg.audit)
			}
			if msg.security != nil {
				securities = append(securities, msg.security)
			}
			if len(audits)+len(securities) >= writerBatchSize {
				flush()
			}
		case <-ticker.C:
			if len(audits)+len(securities) > 0 {
				flush()
			}
		}
	}
}

// Stop signals the writer to flush remaining events and exit.
func (w *Writer) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

// Running reports whether the writer loop is active.
func (w *Writer) Running() bool {
	return w.running.Load()
}

func (w *Writer) flush(audits []*AuditEvent, securities []*SecurityEvent) {
	if len(audits)+len(securities) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.L(context.Background()).Error("panic in audit writer flush", "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(audits) > 0 {
		if err := w.store.AppendAuditBatch(ctx, audits); err != nil {
			logging.L(ctx).Error("audit batch flush failed", "error", err, "count", len(audits))
		}
	}
	if len(securities) > 0 {
		if err := w.store.AppendSecurityBatch(ctx, securities); err != nil {
			logging.L(ctx).Error("security batch flush failed", "error", err, "count", len(securities))
		}
	}
}
