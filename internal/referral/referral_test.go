package referral

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/points"
	"github.com/modubeauty/modu/internal/user"
)

type fakeNotifier struct {
	enqueued []string // "userId/templateId/correlationId"
	params   []map[string]string
}

func (f *fakeNotifier) Enqueue(_ context.Context, userID, templateID, correlationID string, params map[string]string) error {
	f.enqueued = append(f.enqueued, userID+"/"+templateID+"/"+correlationID)
	f.params = append(f.params, params)
	return nil
}

type fixture struct {
	svc      *Service
	users    *user.Service
	ledger   *points.Ledger
	notifier *fakeNotifier
	referrer *user.User
	payer    *user.User
}

func newFixture(t *testing.T, rates Rates) *fixture {
	t.Helper()
	ctx := context.Background()
	users := user.NewService(user.NewMemoryStore())
	ledger := points.NewLedger(points.NewMemoryStore())
	notifier := &fakeNotifier{}
	svc := NewService(NewMemoryStore(), users, ledger, rates).WithNotifier(notifier)

	referrer, err := users.Signup(ctx, user.SignupInput{
		Email: "referrer@example.com", Password: "pw123456", Name: "추천인",
	})
	require.NoError(t, err)
	payer, err := users.Signup(ctx, user.SignupInput{
		Email: "payer@example.com", Password: "pw123456", Name: "민지",
	})
	require.NoError(t, err)
	require.NoError(t, users.SetReferredBy(ctx, payer.ID, referrer.ReferralCode))

	return &fixture{svc: svc, users: users, ledger: ledger, notifier: notifier, referrer: referrer, payer: payer}
}

var testRates = Rates{Standard: 0.05, Influencer: 0.20, PromoteCount: 3, PromoteAmount: 1000}

func TestAttributePaysCommission(t *testing.T) {
	f := newFixture(t, testRates)
	ctx := context.Background()

	r, err := f.svc.Attribute(ctx, Payment{
		PaymentID: "pay_1", PayerUserID: f.payer.ID, Amount: 50000, PointsUsed: 10000,
		PaidAt: time.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, r)

	// floor((50000-10000) * 0.05) = 2000
	assert.Equal(t, int64(2000), r.Commission)
	assert.Equal(t, f.referrer.ID, r.ReferrerUserID)
	assert.Equal(t, f.payer.ID, r.ReferredUserID)

	avail, err := f.ledger.Available(ctx, f.referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), avail)

	require.Len(t, f.notifier.enqueued, 1)
	assert.Equal(t, f.referrer.ID+"/referral_commission/pay_1", f.notifier.enqueued[0])
	assert.Equal(t, "민지", f.notifier.params[0]["name"])
	assert.Equal(t, "2000", f.notifier.params[0]["amount"])
}

func TestAttributeIsIdempotentPerPayment(t *testing.T) {
	f := newFixture(t, testRates)
	ctx := context.Background()
	p := Payment{PaymentID: "pay_1", PayerUserID: f.payer.ID, Amount: 50000, PaidAt: time.Now()}

	first, err := f.svc.Attribute(ctx, p)
	require.NoError(t, err)
	second, err := f.svc.Attribute(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	avail, err := f.ledger.Available(ctx, f.referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), avail)
}

// brokenStore fails Create a fixed number of times before recovering.
type brokenStore struct {
	Store
	failures int
}

func (b *brokenStore) Create(ctx context.Context, r *Referral) error {
	if b.failures > 0 {
		b.failures--
		return errors.New("referrals unavailable")
	}
	return b.Store.Create(ctx, r)
}

func TestAttributeRetryDoesNotDoubleCredit(t *testing.T) {
	f := newFixture(t, testRates)
	ctx := context.Background()

	broken := &brokenStore{Store: NewMemoryStore(), failures: 1}
	svc := f.svc.WithStore(broken, f.ledger)
	p := Payment{PaymentID: "pay_1", PayerUserID: f.payer.ID, Amount: 50000, PaidAt: time.Now()}

	// First attempt credits the ledger, then fails recording the referral.
	_, err := svc.Attribute(ctx, p)
	require.Error(t, err)

	// The retry reuses the existing ledger entry instead of paying again.
	r, err := svc.Attribute(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, int64(2500), r.Commission)

	avail, err := f.ledger.Available(ctx, f.referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), avail)
}

func TestAttributeWithoutReferrerIsNoOp(t *testing.T) {
	f := newFixture(t, testRates)
	ctx := context.Background()

	solo, err := f.users.Signup(ctx, user.SignupInput{
		Email: "solo@example.com", Password: "pw123456", Name: "Solo",
	})
	require.NoError(t, err)

	r, err := f.svc.Attribute(ctx, Payment{
		PaymentID: "pay_2", PayerUserID: solo.ID, Amount: 50000, PaidAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestAttributePointOnlyPaymentEarnsNothing(t *testing.T) {
	f := newFixture(t, testRates)

	r, err := f.svc.Attribute(context.Background(), Payment{
		PaymentID: "pay_3", PayerUserID: f.payer.ID, Amount: 30000, PointsUsed: 30000,
		PaidAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestAttributeUsesInfluencerRate(t *testing.T) {
	f := newFixture(t, testRates)
	ctx := context.Background()

	changed, err := f.users.MarkInfluencer(ctx, f.referrer.ID)
	require.NoError(t, err)
	require.True(t, changed)

	r, err := f.svc.Attribute(ctx, Payment{
		PaymentID: "pay_4", PayerUserID: f.payer.ID, Amount: 10000, PaidAt: time.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, int64(2000), r.Commission)
	assert.Equal(t, 0.20, r.Rate)
}

func TestPromoteRequiresBothThresholds(t *testing.T) {
	f := newFixture(t, testRates)
	ctx := context.Background()

	// Two distinct referred users, commission below the amount threshold.
	for i := 0; i < 2; i++ {
		payer, err := f.users.Signup(ctx, user.SignupInput{
			Email: fmt.Sprintf("p%d@example.com", i), Password: "pw123456", Name: "P",
		})
		require.NoError(t, err)
		require.NoError(t, f.users.SetReferredBy(ctx, payer.ID, f.referrer.ReferralCode))
		_, err = f.svc.Attribute(ctx, Payment{
			PaymentID: fmt.Sprintf("pay_p%d", i), PayerUserID: payer.ID, Amount: 4000,
			PaidAt: time.Now(),
		})
		require.NoError(t, err)
	}

	promoted, err := f.svc.Promote(ctx, f.referrer.ID)
	require.NoError(t, err)
	assert.False(t, promoted)

	// Third distinct referred user pushes count to 3 and total to 1000.
	_, err = f.svc.Attribute(ctx, Payment{
		PaymentID: "pay_final", PayerUserID: f.payer.ID, Amount: 12000, PaidAt: time.Now(),
	})
	require.NoError(t, err)

	u, err := f.users.Get(ctx, f.referrer.ID)
	require.NoError(t, err)
	assert.True(t, u.IsInfluencer)

	// Idempotent re-run.
	promoted, err = f.svc.Promote(ctx, f.referrer.ID)
	require.NoError(t, err)
	assert.False(t, promoted)
}
