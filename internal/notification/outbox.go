package notification

import (
	"context"
	"database/sql"
	"time"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/idgen"
	"github.com/modubeauty/modu/internal/logging"
)

// Outbox accepts notifications from producers. It satisfies the Notifier
// interfaces declared by the reservation, payment, points, and referral
// packages.
type Outbox struct {
	store Store
	now   func() time.Time
}

// NewOutbox creates an outbox over the given store.
func NewOutbox(store Store) *Outbox {
	return &Outbox{store: store, now: time.Now}
}

// Store returns the underlying outbox store.
func (o *Outbox) Store() Store { return o.store }

func (o *Outbox) build(userID, templateID, correlationID string, params map[string]string) (*Notification, error) {
	if userID == "" || correlationID == "" {
		return nil, errs.E(errs.KindValidation, "userId and correlationId are required")
	}
	if _, ok := templates[templateID]; !ok {
		return nil, errs.Ef(errs.KindValidation, "unknown notification template %q", templateID)
	}
	now := o.now().UTC()
	return &Notification{
		ID:            idgen.WithPrefix("ntf_"),
		UserID:        userID,
		TemplateID:    templateID,
		CorrelationID: correlationID,
		Params:        params,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Enqueue records a notification for delivery. Duplicate
// (userId, templateId, correlationId) keys inside the dedupe window are
// dropped silently so producers can enqueue on every redelivery.
func (o *Outbox) Enqueue(ctx context.Context, userID, templateID, correlationID string, params map[string]string) error {
	n, err := o.build(userID, templateID, correlationID, params)
	if err != nil {
		return err
	}
	inserted, err := o.store.Insert(ctx, n)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "enqueue notification", err)
	}
	if !inserted {
		logging.L(ctx).Debug("notification deduped",
			"user_id", userID, "template_id", templateID, "correlation_id", correlationID)
	}
	return nil
}

// EnqueueTx records a notification inside the caller's transaction, so the
// row commits or rolls back with the business change that caused it.
// It requires an SQL-backed store; the memory store does not support it.
func (o *Outbox) EnqueueTx(ctx context.Context, tx *sql.Tx, userID, templateID, correlationID string, params map[string]string) error {
	inserter, ok := o.store.(TxInserter)
	if !ok {
		return o.Enqueue(ctx, userID, templateID, correlationID, params)
	}
	n, err := o.build(userID, templateID, correlationID, params)
	if err != nil {
		return err
	}
	if _, err := inserter.InsertTx(ctx, tx, n); err != nil {
		return errs.Wrap(errs.KindInternal, "enqueue notification", err)
	}
	return nil
}
