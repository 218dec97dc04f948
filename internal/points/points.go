// Package points keeps the append-only point ledger. Balances are never
// stored: they are the sum of a user's entries, minus active holds. Rows
// are immutable; corrections are inverse entries linked back to what they
// undo.
package points

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEntryNotFound = errors.New("points: entry not found")
	ErrHoldNotFound  = errors.New("points: hold not found")
	ErrHoldNotActive = errors.New("points: hold not active")
)

// EntryType classifies a ledger row.
type EntryType string

const (
	TypeEarnedPurchase EntryType = "earned_purchase"
	TypeEarnedReferral EntryType = "earned_referral"
	TypeSpent          EntryType = "spent"
	TypeRefunded       EntryType = "refunded"
	TypeExpired        EntryType = "expired"
	TypeAdjusted       EntryType = "adjusted"
)

// Entry is one immutable ledger row. Amount is positive for credits and
// negative for debits, in whole points (1 point = 1 KRW).
type Entry struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Type          EntryType  `json:"type"`
	Amount        int64      `json:"amount"`
	PaymentID     string     `json:"paymentId,omitempty"`
	RelatedUserID string     `json:"relatedUserId,omitempty"` // referred user on commission rows
	Description   string     `json:"description,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	// ExpiredBy / Reverses link an inverse row to the row it undoes.
	ExpiredBy string    `json:"expiredBy,omitempty"`
	Reverses  string    `json:"reverses,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HoldStatus is a hold's lifecycle state.
type HoldStatus string

const (
	HoldActive    HoldStatus = "active"
	HoldCommitted HoldStatus = "committed"
	HoldReleased  HoldStatus = "released"
)

// Hold reserves points during payment without writing a ledger row. The
// correlation ID ties it to the payment attempt.
type Hold struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Amount        int64      `json:"amount"`
	CorrelationID string     `json:"correlationId"`
	Status        HoldStatus `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Summary is the read-model for a user's point position.
type Summary struct {
	Balance     int64 `json:"balance"`
	Available   int64 `json:"available"` // balance minus active holds
	TotalEarned int64 `json:"totalEarned"`
	TotalSpent  int64 `json:"totalSpent"`
	EarnedToday int64 `json:"earnedToday"`
}

// HistoryQuery pages a user's entries, newest first.
type HistoryQuery struct {
	UserID string
	From   time.Time
	To     time.Time
	Cursor string
	Limit  int
}

// Store persists ledger entries and holds.
type Store interface {
	AppendEntry(ctx context.Context, e *Entry) error
	GetEntry(ctx context.Context, id string) (*Entry, error)
	// EntriesByPayment returns all rows carrying paymentID, oldest first.
	EntriesByPayment(ctx context.Context, paymentID string) ([]*Entry, error)
	// Balance sums a user's entries.
	Balance(ctx context.Context, userID string) (int64, error)
	Summary(ctx context.Context, userID string, now time.Time) (*Summary, error)
	History(ctx context.Context, q HistoryQuery) ([]*Entry, string, error)
	// ExpiringEntries returns positive rows whose expiresAt has passed and
	// that no expired row links back to yet.
	ExpiringEntries(ctx context.Context, now time.Time, limit int) ([]*Entry, error)
	// FindReferralEntry locates the commission row for a payment. Rows
	// written before paymentId stamping are matched by a time window
	// around paidAt.
	FindReferralEntry(ctx context.Context, paymentID string, paidAt time.Time, userID string, window time.Duration) (*Entry, error)

	CreateHold(ctx context.Context, h *Hold) error
	GetHoldByCorrelation(ctx context.Context, correlationID string) (*Hold, error)
	UpdateHold(ctx context.Context, h *Hold) error
	ActiveHoldTotal(ctx context.Context, userID string) (int64, error)
}
