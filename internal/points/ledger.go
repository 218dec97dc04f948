package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/idgen"
	"github.com/modubeauty/modu/internal/logging"
	"github.com/modubeauty/modu/internal/metrics"
	"github.com/modubeauty/modu/internal/pagination"
)

// referralWindowMin bounds the read-side fallback when a commission row
// predates paymentId stamping.
const referralWindowMin = 10

// Opts carries the optional attributes of a ledger write.
type Opts struct {
	PaymentID     string
	RelatedUserID string
	Description   string
	ExpiresAt     *time.Time
}

// Ledger is the point ledger service.
type Ledger struct {
	store          Store
	defaultExpiry  time.Duration
	referralWindow time.Duration
	now            func() time.Time
}

// NewLedger creates the point ledger over a store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// WithDefaultExpiry makes credits without an explicit expiresAt expire
// after d. Zero disables the default.
func (l *Ledger) WithDefaultExpiry(d time.Duration) *Ledger {
	l.defaultExpiry = d
	return l
}

// WithReferralWindow overrides the fallback match window around paidAt.
func (l *Ledger) WithReferralWindow(d time.Duration) *Ledger {
	l.referralWindow = d
	return l
}

// WithStore returns a copy of the ledger bound to a different store,
// typically one scoped to a caller-owned transaction.
func (l *Ledger) WithStore(s Store) *Ledger {
	cp := *l
	cp.store = s
	return &cp
}

// Store exposes the underlying store for wiring.
func (l *Ledger) Store() Store { return l.store }

func (l *Ledger) append(ctx context.Context, e *Entry) error {
	if err := l.store.AppendEntry(ctx, e); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	metrics.PointEntriesTotal.WithLabelValues(string(e.Type)).Inc()
	return nil
}

// Credit adds points to a user.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, typ EntryType, opts Opts) (*Entry, error) {
	if amount <= 0 {
		return nil, errs.E(errs.KindValidation, "credit amount must be positive")
	}
	if opts.ExpiresAt == nil && l.defaultExpiry > 0 {
		at := l.now().UTC().Add(l.defaultExpiry)
		opts.ExpiresAt = &at
	}
	e := &Entry{
		ID:            idgen.WithPrefix("pt_"),
		UserID:        userID,
		Type:          typ,
		Amount:        amount,
		PaymentID:     opts.PaymentID,
		RelatedUserID: opts.RelatedUserID,
		Description:   opts.Description,
		ExpiresAt:     opts.ExpiresAt,
		CreatedAt:     l.now().UTC(),
	}
	if err := l.append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Debit removes points from a user. Fails when the available balance
// (entries minus active holds) cannot cover the amount.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, typ EntryType, opts Opts) (*Entry, error) {
	if amount <= 0 {
		return nil, errs.E(errs.KindValidation, "debit amount must be positive")
	}
	available, err := l.Available(ctx, userID)
	if err != nil {
		return nil, err
	}
	if available < amount {
		return nil, errs.E(errs.KindInsufficientPoints, "insufficient points").
			WithDetails(map[string]any{"available": available, "requested": amount})
	}
	e := &Entry{
		ID:            idgen.WithPrefix("pt_"),
		UserID:        userID,
		Type:          typ,
		Amount:        -amount,
		PaymentID:     opts.PaymentID,
		RelatedUserID: opts.RelatedUserID,
		Description:   opts.Description,
		CreatedAt:     l.now().UTC(),
	}
	if err := l.append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Available returns balance minus active holds.
func (l *Ledger) Available(ctx context.Context, userID string) (int64, error) {
	balance, err := l.store.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	held, err := l.store.ActiveHoldTotal(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("active holds: %w", err)
	}
	return balance - held, nil
}

// Hold reserves points for a payment attempt. Idempotent per correlation
// ID: re-running returns the existing hold.
func (l *Ledger) Hold(ctx context.Context, userID string, amount int64, correlationID string) (*Hold, error) {
	if amount <= 0 {
		return nil, errs.E(errs.KindValidation, "hold amount must be positive")
	}
	if existing, err := l.store.GetHoldByCorrelation(ctx, correlationID); err == nil {
		if existing.UserID != userID || existing.Amount != amount {
			return nil, errs.E(errs.KindConflictIdempotent, "correlation id reused with different parameters")
		}
		return existing, nil
	} else if !errors.Is(err, ErrHoldNotFound) {
		return nil, fmt.Errorf("lookup hold: %w", err)
	}

	available, err := l.Available(ctx, userID)
	if err != nil {
		return nil, err
	}
	if available < amount {
		return nil, errs.E(errs.KindInsufficientPoints, "insufficient points").
			WithDetails(map[string]any{"available": available, "requested": amount})
	}

	now := l.now().UTC()
	h := &Hold{
		ID:            idgen.WithPrefix("hld_"),
		UserID:        userID,
		Amount:        amount,
		CorrelationID: correlationID,
		Status:        HoldActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.store.CreateHold(ctx, h); err != nil {
		return nil, fmt.Errorf("create hold: %w", err)
	}
	return h, nil
}

// CommitHold converts an active hold into a spent entry. Idempotent: a
// hold already committed is a no-op.
func (l *Ledger) CommitHold(ctx context.Context, correlationID, paymentID string) (*Entry, error) {
	h, err := l.store.GetHoldByCorrelation(ctx, correlationID)
	if err != nil {
		if errors.Is(err, ErrHoldNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "hold not found", err)
		}
		return nil, fmt.Errorf("lookup hold: %w", err)
	}
	switch h.Status {
	case HoldCommitted:
		return nil, nil
	case HoldReleased:
		return nil, errs.E(errs.KindConflictState, "hold already released")
	}

	h.Status = HoldCommitted
	h.UpdatedAt = l.now().UTC()
	if err := l.store.UpdateHold(ctx, h); err != nil {
		return nil, fmt.Errorf("update hold: %w", err)
	}
	e := &Entry{
		ID:        idgen.WithPrefix("pt_"),
		UserID:    h.UserID,
		Type:      TypeSpent,
		Amount:    -h.Amount,
		PaymentID: paymentID,
		CreatedAt: l.now().UTC(),
	}
	if err := l.append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ReleaseHold frees a hold without spending. Idempotent.
func (l *Ledger) ReleaseHold(ctx context.Context, correlationID string) error {
	h, err := l.store.GetHoldByCorrelation(ctx, correlationID)
	if err != nil {
		if errors.Is(err, ErrHoldNotFound) {
			return nil
		}
		return fmt.Errorf("lookup hold: %w", err)
	}
	switch h.Status {
	case HoldReleased:
		return nil
	case HoldCommitted:
		return errs.E(errs.KindConflictState, "hold already committed")
	}
	h.Status = HoldReleased
	h.UpdatedAt = l.now().UTC()
	if err := l.store.UpdateHold(ctx, h); err != nil {
		return fmt.Errorf("update hold: %w", err)
	}
	return nil
}

// ReverseByPayment writes exact inverse entries for every row carrying
// paymentID. Rows that are themselves reversals, or already reversed, are
// skipped, so re-running a refund webhook adds nothing.
func (l *Ledger) ReverseByPayment(ctx context.Context, paymentID string, asType EntryType) ([]*Entry, error) {
	rows, err := l.store.EntriesByPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("entries by payment: %w", err)
	}
	reversed := make(map[string]bool)
	for _, e := range rows {
		if e.Reverses != "" {
			reversed[e.Reverses] = true
		}
	}

	var out []*Entry
	for _, e := range rows {
		if e.Reverses != "" || reversed[e.ID] {
			continue
		}
		inv := &Entry{
			ID:            idgen.WithPrefix("pt_"),
			UserID:        e.UserID,
			Type:          asType,
			Amount:        -e.Amount,
			PaymentID:     paymentID,
			RelatedUserID: e.RelatedUserID,
			Reverses:      e.ID,
			CreatedAt:     l.now().UTC(),
		}
		if err := l.append(ctx, inv); err != nil {
			return out, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// Expire writes inverse expired entries for rows whose expiresAt has
// passed. Called by the Timer.
func (l *Ledger) Expire(ctx context.Context) (int, error) {
	now := l.now().UTC()
	rows, err := l.store.ExpiringEntries(ctx, now, 500)
	if err != nil {
		return 0, fmt.Errorf("list expiring entries: %w", err)
	}
	expired := 0
	for _, e := range rows {
		inv := &Entry{
			ID:        idgen.WithPrefix("pt_"),
			UserID:    e.UserID,
			Type:      TypeExpired,
			Amount:    -e.Amount,
			ExpiredBy: e.ID,
			CreatedAt: now,
		}
		if err := l.append(ctx, inv); err != nil {
			logging.L(ctx).Warn("expire entry", "entryId", e.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// Summary returns a user's point position.
func (l *Ledger) Summary(ctx context.Context, userID string) (*Summary, error) {
	return l.store.Summary(ctx, userID, l.now().UTC())
}

// History pages a user's entries. The cursor is opaque to callers.
func (l *Ledger) History(ctx context.Context, q HistoryQuery) ([]*Entry, string, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 50
	}
	if q.Cursor != "" {
		c, err := pagination.Decode(q.Cursor)
		if err != nil {
			return nil, "", errs.Wrap(errs.KindValidation, "invalid cursor", err)
		}
		q.Cursor = c.ID
	}
	entries, nextID, err := l.store.History(ctx, q)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if nextID != "" && len(entries) > 0 {
		last := entries[len(entries)-1]
		next = pagination.Encode(last.CreatedAt, last.ID)
	}
	return entries, next, nil
}

// FindReferralEntry locates a referrer's commission row for a payment,
// falling back to a ±10 minute window around paidAt for rows written
// before paymentId stamping.
func (l *Ledger) FindReferralEntry(ctx context.Context, paymentID string, paidAt time.Time, userID string) (*Entry, error) {
	window := l.referralWindow
	if window <= 0 {
		window = referralWindowMin * time.Minute
	}
	e, err := l.store.FindReferralEntry(ctx, paymentID, paidAt, userID, window)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, errs.Wrap(errs.KindNotFound, "referral entry not found", err)
		}
		return nil, err
	}
	return e, nil
}
