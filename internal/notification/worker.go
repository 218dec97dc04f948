package notification

import (
	"context"
	"time"

	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/metrics"
	"github.com/modubeauty/modu/internal/retry"
)

const defaultDrainBatch = 100

// Worker drains the outbox: renders templates, fans out to the user's
// active devices, and reschedules or fails rows per error classification.
type Worker struct {
	store       Store
	tokens      TokenStore
	push        Push
	maxAttempts int
	baseDelay   time.Duration
	batchSize   int
	now         func() time.Time
}

// NewWorker creates a drain worker.
func NewWorker(store Store, tokens TokenStore, push Push) *Worker {
	return &Worker{
		store:       store,
		tokens:      tokens,
		push:        push,
		maxAttempts: maxAttempts,
		baseDelay:   500 * time.Millisecond,
		batchSize:   defaultDrainBatch,
		now:         time.Now,
	}
}

// WithMaxAttempts overrides the delivery attempt cap.
func (w *Worker) WithMaxAttempts(n int) *Worker {
	if n > 0 {
		w.maxAttempts = n
	}
	return w
}

// WithBackoffBase overrides the base delay for retry scheduling.
func (w *Worker) WithBackoffBase(d time.Duration) *Worker {
	if d > 0 {
		w.baseDelay = d
	}
	return w
}

// Drain processes one batch of due notifications and reports how many were
// delivered. Per-row errors are absorbed into the row's state; only store
// listing errors surface.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	due, err := w.store.ListDue(ctx, w.now().UTC(), w.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, n := range due {
		if w.deliver(ctx, n) {
			sent++
		}
	}
	return sent, nil
}

// deliver attempts one notification and persists the outcome. Returns true
// when the row reached at least one device.
func (w *Worker) deliver(ctx context.Context, n *Notification) bool {
	now := w.now().UTC()
	n.Attempts++

	title, body, err := Render(n.TemplateID, n.Params)
	if err != nil {
		w.conclude(ctx, n, StatusFailed, "unknown_template", now)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return false
	}

	tokens, err := w.tokens.ListActive(ctx, n.UserID)
	if err != nil {
		w.reschedule(ctx, n, "list tokens: "+err.Error(), now)
		metrics.NotificationsTotal.WithLabelValues("retried").Inc()
		return false
	}
	if len(tokens) == 0 {
		// Nothing to deliver to; the row is done, not stuck.
		w.conclude(ctx, n, StatusSent, "no_active_tokens", now)
		metrics.NotificationsTotal.WithLabelValues("no_tokens").Inc()
		return false
	}

	data := map[string]string{
		"templateId":    n.TemplateID,
		"correlationId": n.CorrelationID,
	}
	delivered := false
	transient := false
	lastErr := ""
	for _, t := range tokens {
		err := w.push.Send(ctx, t.Token, title, body, data)
		if err == nil {
			delivered = true
			continue
		}
		lastErr = err.Error()
		switch sendCode(err) {
		case CodeInvalidToken:
			if derr := w.tokens.DeactivateToken(ctx, t.Token); derr != nil {
				logging.L(ctx).Warn("deactivate dead push token failed",
					"user_id", n.UserID, "error", derr)
			}
		case CodeRateLimited, CodeUnavailable:
			transient = true
		default:
			// permanent per-token failure, skip this device
		}
	}

	switch {
	case delivered:
		w.conclude(ctx, n, StatusSent, "", now)
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		return true
	case transient && n.Attempts < w.maxAttempts:
		w.reschedule(ctx, n, lastErr, now)
		metrics.NotificationsTotal.WithLabelValues("retried").Inc()
		return false
	default:
		w.conclude(ctx, n, StatusFailed, lastErr, now)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return false
	}
}

func (w *Worker) conclude(ctx context.Context, n *Notification, status Status, lastErr string, now time.Time) {
	n.Status = status
	n.LastError = lastErr
	n.UpdatedAt = now
	if status == StatusSent {
		t := now
		n.SentAt = &t
	}
	if err := w.store.Update(ctx, n); err != nil {
		logging.L(ctx).Error("persist notification outcome failed",
			"notification_id", n.ID, "status", string(status), "error", err)
	}
}

func (w *Worker) reschedule(ctx context.Context, n *Notification, lastErr string, now time.Time) {
	n.LastError = lastErr
	n.NextAttemptAt = now.Add(retry.Delay(n.Attempts, w.baseDelay))
	n.UpdatedAt = now
	if err := w.store.Update(ctx, n); err != nil {
		logging.L(ctx).Error("reschedule notification failed",
			"notification_id", n.ID, "error", err)
	}
}
