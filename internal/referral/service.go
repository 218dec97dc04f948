package referral

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/modubeauty/modu/internal/idgen"
	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/metrics"
	"github.com/modubeauty/modu/internal/points"
	"github.com/modubeauty/modu/internal/user"
)

// Notifier enqueues user notifications. Implemented by the notification
// outbox; nil disables notifications.
type Notifier interface {
	Enqueue(ctx context.Context, userID, templateID, correlationID string, params map[string]string) error
}

// Rates configures commission and promotion thresholds.
type Rates struct {
	Standard      float64 // fraction of eligible amount, e.g. 0.05
	Influencer    float64
	PromoteCount  int   // successful referrals required for promotion
	PromoteAmount int64 // lifetime commission (KRW) required for promotion
}

// Service computes and pays referral commission.
type Service struct {
	store    Store
	users    *user.Service
	ledger   *points.Ledger
	notifier Notifier
	rates    Rates
	now      func() time.Time
}

// NewService creates the referral service.
func NewService(store Store, users *user.Service, ledger *points.Ledger, rates Rates) *Service {
	return &Service{store: store, users: users, ledger: ledger, rates: rates, now: time.Now}
}

// WithNotifier attaches the notification outbox.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithStore returns a copy bound to st and ledger. The payment orchestrator
// uses it to run attribution on transaction-bound stores.
func (s *Service) WithStore(st Store, ledger *points.Ledger) *Service {
	cp := *s
	cp.store = st
	cp.ledger = ledger
	return &cp
}

// Payment carries what attribution needs from an approved payment.
type Payment struct {
	PaymentID   string
	PayerUserID string
	Amount      int64 // total paid, KRW
	PointsUsed  int64 // portion covered by points; earns no commission
	PaidAt      time.Time
}

// Attribute pays commission for an approved payment. Invoked from the
// webhook approval flow. No referrer, a zero-point-adjusted amount, or a
// payment already attributed all resolve to a nil Referral without error.
func (s *Service) Attribute(ctx context.Context, p Payment) (*Referral, error) {
	if existing, err := s.store.GetByPayment(ctx, p.PaymentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup referral: %w", err)
	}

	payer, err := s.users.Get(ctx, p.PayerUserID)
	if err != nil {
		return nil, fmt.Errorf("load payer: %w", err)
	}
	if payer.ReferredByCode == "" {
		return nil, nil
	}
	referrer, err := s.users.GetByReferralCode(ctx, payer.ReferredByCode)
	if err != nil {
		logging.L(ctx).Warn("referrer missing for code", "code", payer.ReferredByCode, "error", err)
		return nil, nil
	}

	eligible := p.Amount - p.PointsUsed
	if eligible <= 0 {
		return nil, nil
	}
	rate := s.rates.Standard
	if referrer.IsInfluencer {
		rate = s.rates.Influencer
	}
	commission := int64(math.Floor(float64(eligible) * rate))
	if commission <= 0 {
		return nil, nil
	}

	// A retried delivery may have credited the ledger and then failed before
	// the referral row landed. Reuse that entry instead of paying twice.
	credited := false
	if entry, err := s.ledger.FindReferralEntry(ctx, p.PaymentID, p.PaidAt, referrer.ID); err == nil {
		credited = entry.PaymentID == p.PaymentID
	}
	if !credited {
		if _, err := s.ledger.Credit(ctx, referrer.ID, commission, points.TypeEarnedReferral, points.Opts{
			PaymentID:     p.PaymentID,
			RelatedUserID: payer.ID,
		}); err != nil {
			return nil, fmt.Errorf("credit commission: %w", err)
		}
	}

	r := &Referral{
		ID:             idgen.WithPrefix("ref_"),
		ReferrerUserID: referrer.ID,
		ReferredUserID: payer.ID,
		PaymentID:      p.PaymentID,
		Commission:     commission,
		Rate:           rate,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("record referral: %w", err)
	}
	metrics.ReferralCommissionsTotal.Inc()

	if s.notifier != nil {
		params := map[string]string{
			"name":   payer.Name,
			"amount": fmt.Sprintf("%d", commission),
		}
		if err := s.notifier.Enqueue(ctx, referrer.ID, "referral_commission", p.PaymentID, params); err != nil {
			logging.L(ctx).Warn("enqueue referral notification", "error", err)
		}
	}

	if _, err := s.Promote(ctx, referrer.ID); err != nil {
		logging.L(ctx).Warn("influencer promotion check", "referrerId", referrer.ID, "error", err)
	}
	return r, nil
}

// Promote marks the referrer as influencer once both thresholds are met.
// Idempotent: an already-promoted referrer is a no-op.
func (s *Service) Promote(ctx context.Context, referrerID string) (bool, error) {
	count, err := s.store.CountByReferrer(ctx, referrerID)
	if err != nil {
		return false, fmt.Errorf("count referrals: %w", err)
	}
	if count < s.rates.PromoteCount {
		return false, nil
	}
	total, err := s.store.TotalCommission(ctx, referrerID)
	if err != nil {
		return false, fmt.Errorf("total commission: %w", err)
	}
	if total < s.rates.PromoteAmount {
		return false, nil
	}
	return s.users.MarkInfluencer(ctx, referrerID)
}
