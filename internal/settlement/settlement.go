// Package settlement computes per-shop payout reports over a period.
// Reports are derived from settled payment rows at read time; nothing is
// persisted, so a report is always consistent with the payment ledger.
package settlement

import (
	"context"
	"math"
	"time"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/payment"
	"github.com/modubeauty/modu/internal/shop"
)

// maxPeriod bounds one report so a misconstructed query cannot scan years
// of payments.
const maxPeriod = 366 * 24 * time.Hour

// Report is the payout summary for one shop over [From, To].
//
// Gross counts the full service value (cash plus points, since the
// platform reimburses the shop for points-paid portions). Refunded
// payments and their refund rows cancel out and are reported separately.
// Disputed amounts are held back from the payout until resolution.
type Report struct {
	ShopID         string    `json:"shopId"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	PaymentCount   int       `json:"paymentCount"`
	GrossAmount    int64     `json:"grossAmount"`
	PointsPortion  int64     `json:"pointsPortion"`
	RefundedAmount int64     `json:"refundedAmount"`
	DisputedHeld   int64     `json:"disputedHeld"`
	CommissionRate float64   `json:"commissionRate"`
	Commission     int64     `json:"commission"`
	NetPayout      int64     `json:"netPayout"`
}

// Service builds settlement reports.
type Service struct {
	payments payment.Store
	shops    *shop.Manager
}

// NewService creates a settlement service.
func NewService(payments payment.Store, shops *shop.Manager) *Service {
	return &Service{payments: payments, shops: shops}
}

// Report computes the payout summary for a shop over [from, to].
func (s *Service) Report(ctx context.Context, shopID string, from, to time.Time) (*Report, error) {
	if from.IsZero() || to.IsZero() {
		return nil, errs.E(errs.KindValidation, "from and to are required")
	}
	if to.Before(from) {
		return nil, errs.E(errs.KindValidation, "to must not precede from")
	}
	if to.Sub(from) > maxPeriod {
		return nil, errs.E(errs.KindValidation, "settlement period must not exceed one year")
	}

	sh, err := s.shops.Get(ctx, shopID)
	if err != nil {
		return nil, err
	}

	rows, err := s.payments.ListSettledByShop(ctx, shopID, from, to)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "list settled payments", err)
	}

	r := &Report{
		ShopID:         shopID,
		From:           from,
		To:             to,
		CommissionRate: sh.CommissionRate,
	}
	for _, p := range rows {
		switch {
		case p.RefundOf != "":
			// Refund row: the money went back to the customer.
			r.RefundedAmount += p.Amount + p.PointsUsed
		case p.Status == payment.StatusRefunded:
			// Refunded original: cancelled by its refund row, not payable.
		case p.Status == payment.StatusDisputed:
			r.DisputedHeld += p.Amount + p.PointsUsed
		default:
			r.PaymentCount++
			r.GrossAmount += p.Amount + p.PointsUsed
			r.PointsPortion += p.PointsUsed
		}
	}

	r.Commission = int64(math.Round(float64(r.GrossAmount) * sh.CommissionRate / 100))
	r.NetPayout = r.GrossAmount - r.Commission
	return r, nil
}
