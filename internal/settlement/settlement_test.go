package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/payment"
	"github.com/modubeauty/modu/internal/shop"
)

type settleFixture struct {
	svc      *Service
	payments *payment.MemoryStore
	shop     *shop.Shop
	from     time.Time
	to       time.Time
}

func newSettleFixture(t *testing.T) *settleFixture {
	t.Helper()
	ctx := context.Background()

	shops := shop.NewManager(shop.NewMemoryStore())
	s, err := shops.Register(ctx, shop.RegisterInput{OwnerID: "usr_owner", Name: "살롱드모두"})
	require.NoError(t, err)
	rate := 10.0
	s, err = shops.Approve(ctx, "adm_1", s.ID, shop.ApproveInput{Approved: true, CommissionRate: &rate}, "")
	require.NoError(t, err)

	payments := payment.NewMemoryStore()
	return &settleFixture{
		svc:      NewService(payments, shops),
		payments: payments,
		shop:     s,
		from:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		to:       time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC),
	}
}

func (f *settleFixture) add(t *testing.T, p *payment.Payment) {
	t.Helper()
	p.ShopID = f.shop.ID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = f.from
		p.UpdatedAt = f.from
	}
	require.NoError(t, f.payments.Create(context.Background(), p))
}

func paidAt(t time.Time) *time.Time { return &t }

func TestReportComputesPayout(t *testing.T) {
	f := newSettleFixture(t)
	mid := f.from.Add(72 * time.Hour)

	f.add(t, &payment.Payment{
		ID: "pay_1", UserID: "usr_a", Amount: 18000, PointsUsed: 2000,
		Status: payment.StatusFullyPaid, CorrelationID: "cor_1", PaidAt: paidAt(mid),
	})
	f.add(t, &payment.Payment{
		ID: "pay_2", UserID: "usr_b", Amount: 80000,
		Status: payment.StatusFullyPaid, CorrelationID: "cor_2", PaidAt: paidAt(mid),
	})

	r, err := f.svc.Report(context.Background(), f.shop.ID, f.from, f.to)
	require.NoError(t, err)
	assert.Equal(t, 2, r.PaymentCount)
	assert.Equal(t, int64(100000), r.GrossAmount)
	assert.Equal(t, int64(2000), r.PointsPortion)
	assert.Equal(t, 10.0, r.CommissionRate)
	assert.Equal(t, int64(10000), r.Commission)
	assert.Equal(t, int64(90000), r.NetPayout)
}

func TestReportRefundsNetToZero(t *testing.T) {
	f := newSettleFixture(t)
	mid := f.from.Add(72 * time.Hour)

	f.add(t, &payment.Payment{
		ID: "pay_1", UserID: "usr_a", Amount: 17000, PointsUsed: 3000,
		Status: payment.StatusRefunded, CorrelationID: "cor_1", PaidAt: paidAt(mid),
	})
	f.add(t, &payment.Payment{
		ID: "pay_rf", UserID: "usr_a", Amount: 17000,
		Status: payment.StatusRefunded, CorrelationID: "cor_rf",
		RefundOf: "pay_1", PaidAt: paidAt(mid),
	})

	r, err := f.svc.Report(context.Background(), f.shop.ID, f.from, f.to)
	require.NoError(t, err)
	assert.Equal(t, 0, r.PaymentCount)
	assert.Equal(t, int64(0), r.GrossAmount)
	assert.Equal(t, int64(17000), r.RefundedAmount)
	assert.Equal(t, int64(0), r.NetPayout)
}

func TestReportHoldsDisputedAmounts(t *testing.T) {
	f := newSettleFixture(t)
	mid := f.from.Add(72 * time.Hour)

	f.add(t, &payment.Payment{
		ID: "pay_1", UserID: "usr_a", Amount: 50000,
		Status: payment.StatusFullyPaid, CorrelationID: "cor_1", PaidAt: paidAt(mid),
	})
	f.add(t, &payment.Payment{
		ID: "pay_2", UserID: "usr_b", Amount: 30000,
		Status: payment.StatusDisputed, CorrelationID: "cor_2", PaidAt: paidAt(mid),
	})

	r, err := f.svc.Report(context.Background(), f.shop.ID, f.from, f.to)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), r.GrossAmount)
	assert.Equal(t, int64(30000), r.DisputedHeld)
	assert.Equal(t, int64(5000), r.Commission)
	assert.Equal(t, int64(45000), r.NetPayout)
}

func TestReportExcludesPaymentsOutsidePeriod(t *testing.T) {
	f := newSettleFixture(t)

	f.add(t, &payment.Payment{
		ID: "pay_old", UserID: "usr_a", Amount: 99999,
		Status: payment.StatusFullyPaid, CorrelationID: "cor_old",
		PaidAt: paidAt(f.from.Add(-time.Hour)),
	})

	r, err := f.svc.Report(context.Background(), f.shop.ID, f.from, f.to)
	require.NoError(t, err)
	assert.Equal(t, 0, r.PaymentCount)
	assert.Equal(t, int64(0), r.GrossAmount)
}

func TestReportValidatesPeriod(t *testing.T) {
	f := newSettleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Report(ctx, f.shop.ID, f.to, f.from)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = f.svc.Report(ctx, f.shop.ID, time.Time{}, f.to)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = f.svc.Report(ctx, f.shop.ID, f.from, f.from.Add(2*366*24*time.Hour))
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestReportUnknownShop(t *testing.T) {
	f := newSettleFixture(t)

	_, err := f.svc.Report(context.Background(), "shp_missing", f.from, f.to)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}
