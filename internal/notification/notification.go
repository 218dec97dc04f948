// Package notification delivers push notifications through a
// transactional outbox. Producers enqueue rows (inside their own
// transaction when they have one); the worker drains the outbox after
// commit, renders the Korean templates, and sends through the push client
// with retry classification.
package notification

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("notification: not found")
)

// Status is an outbox row's state.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// maxAttempts bounds transient redelivery.
const maxAttempts = 5

// dedupeWindow is how long the (user, template, correlation) idempotency
// key suppresses duplicates.
const dedupeWindow = 24 * time.Hour

// Notification is one outbox row.
type Notification struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	TemplateID    string            `json:"templateId"`
	CorrelationID string            `json:"correlationId"`
	Params        map[string]string `json:"params,omitempty"`
	Status        Status            `json:"status"`
	Attempts      int               `json:"attempts"`
	NextAttemptAt time.Time         `json:"nextAttemptAt"`
	LastError     string            `json:"lastError,omitempty"`
	SentAt        *time.Time        `json:"sentAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// PushToken is one device registration. A later token with the same
// (userId, deviceId) supersedes the earlier one.
type PushToken struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	DeviceID  string    `json:"deviceId"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists outbox rows.
type Store interface {
	// Insert appends a row unless the (userId, templateId, correlationId)
	// key was already enqueued inside the dedupe window. Deduped inserts
	// return false.
	Insert(ctx context.Context, n *Notification) (bool, error)
	// ListDue returns pending rows whose nextAttemptAt has passed, oldest
	// first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Notification, error)
	Update(ctx context.Context, n *Notification) error
}

// TxInserter is implemented by SQL-backed stores so producers can enqueue
// inside their own transaction.
type TxInserter interface {
	InsertTx(ctx context.Context, tx *sql.Tx, n *Notification) (bool, error)
}

// TokenStore persists device push tokens.
type TokenStore interface {
	Upsert(ctx context.Context, t *PushToken) error
	ListActive(ctx context.Context, userID string) ([]*PushToken, error)
	DeactivateDevice(ctx context.Context, userID, deviceID string) error
	// DeactivateToken disables a token the push service reported invalid.
	DeactivateToken(ctx context.Context, token string) error
}
