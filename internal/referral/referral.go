// Package referral pays commission to the user whose code a paying
// customer signed up with, and promotes prolific referrers to influencer.
package referral

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("referral: not found")

// Referral is one paid-out commission.
type Referral struct {
	ID             string    `json:"id"`
	ReferrerUserID string    `json:"referrerUserId"`
	ReferredUserID string    `json:"referredUserId"`
	PaymentID      string    `json:"paymentId"`
	Commission     int64     `json:"commission"`
	Rate           float64   `json:"rate"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store persists commission rows.
type Store interface {
	Create(ctx context.Context, r *Referral) error
	// GetByPayment returns the commission paid for a payment, if any.
	GetByPayment(ctx context.Context, paymentID string) (*Referral, error)
	// CountByReferrer counts distinct referred users who generated
	// commission for the referrer.
	CountByReferrer(ctx context.Context, referrerUserID string) (int, error)
	// TotalCommission sums lifetime commission for the referrer.
	TotalCommission(ctx context.Context, referrerUserID string) (int64, error)
	ListByReferrer(ctx context.Context, referrerUserID string, limit int) ([]*Referral, error)
}
