// Package payment orchestrates gateway payments for reservations: initiation
// with point holds, HMAC-verified webhook settlement, refunds, disputes, and
// the reconcile sweep for payments the gateway never called back about.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("payment: not found")
)

// Status is a payment's lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDepositPaid Status = "deposit_paid"
	StatusFullyPaid   Status = "fully_paid"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
	StatusDisputed    Status = "disputed"
)

// Settled reports whether money landed (fully or as a deposit).
func (s Status) Settled() bool {
	return s == StatusDepositPaid || s == StatusFullyPaid
}

// Terminal reports whether no further gateway event can move the payment.
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Payment is one gateway charge attempt. Amount is the cash portion in KRW;
// PointsUsed is held at initiation and committed on approval. Refunds are
// separate rows linked through RefundOf.
type Payment struct {
	ID            string     `json:"id"`
	ReservationID string     `json:"reservationId"`
	ShopID        string     `json:"shopId"`
	UserID        string     `json:"userId"`
	Amount        int64      `json:"amount"`
	PointsUsed    int64      `json:"pointsUsed"`
	Method        string     `json:"method"`
	Status        Status     `json:"status"`
	CorrelationID string     `json:"correlationId"`
	GatewayTxID   string     `json:"gatewayTxId,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	RefundOf      string     `json:"refundOfPaymentId,omitempty"`
	// DisputeDeadline is the evidence submission cutoff set when the
	// gateway reports a dispute.
	DisputeDeadline *time.Time `json:"disputeDeadline,omitempty"`
	FailureReason   string     `json:"failureReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Store persists payments and the processed-webhook-event markers.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByCorrelation(ctx context.Context, correlationID string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	// ListPendingBefore returns pending payments created before cutoff,
	// oldest first. The reconcile sweep feeds on it.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Payment, error)
	// ListSettledByShop returns settled and refund rows whose paidAt falls
	// in [from, to]. Settlement reporting reads it.
	ListSettledByShop(ctx context.Context, shopID string, from, to time.Time) ([]*Payment, error)
	// MarkEventProcessed records (gatewayTxId, event) and reports whether
	// this delivery is the first. Duplicates return false.
	MarkEventProcessed(ctx context.Context, gatewayTxID, event string, at time.Time) (bool, error)
}

// TxRunner is implemented by SQL-backed stores so webhook settlement can run
// payment updates, event markers, and hold commits in one transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
	WithTx(tx *sql.Tx) Store
}

// Webhook event names as the gateway sends them.
const (
	EventApproved  = "approved"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
	EventRefund    = "refund"
	EventDispute   = "dispute"
)

// WebhookEvent is the parsed gateway callback body.
type WebhookEvent struct {
	Event         string    `json:"event"`
	CorrelationID string    `json:"correlationId"`
	GatewayTxID   string    `json:"gatewayTxId"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason,omitempty"`
	// Initiator is "user" or "shop" on refund events and decides which
	// cancellation state the reservation lands in.
	Initiator  string    `json:"initiator,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func validEvent(name string) bool {
	switch name {
	case EventApproved, EventFailed, EventCancelled, EventRefund, EventDispute:
		return true
	}
	return false
}
