//go:build integration

package points

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/testutil"
)

func entry(id, userID string, typ EntryType, amount int64) *Entry {
	return &Entry{
		ID:        id,
		UserID:    userID,
		Type:      typ,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
}

func TestBalanceIsSumOfEntries(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.AppendEntry(ctx, entry("pe_1", "usr_a", TypeEarnedPurchase, 5000)))
	require.NoError(t, store.AppendEntry(ctx, entry("pe_2", "usr_a", TypeEarnedReferral, 3000)))
	require.NoError(t, store.AppendEntry(ctx, entry("pe_3", "usr_a", TypeSpent, -2000)))
	require.NoError(t, store.AppendEntry(ctx, entry("pe_other", "usr_b", TypeEarnedPurchase, 999)))

	balance, err := store.Balance(ctx, "usr_a")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance)
}

func TestSummaryExcludesRefundsFromEarned(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	old := entry("pe_old", "usr_a", TypeEarnedPurchase, 1000)
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.AppendEntry(ctx, old))
	require.NoError(t, store.AppendEntry(ctx, entry("pe_today", "usr_a", TypeEarnedReferral, 2000)))
	require.NoError(t, store.AppendEntry(ctx, entry("pe_spend", "usr_a", TypeSpent, -500)))
	// Refunds restore balance but are not earnings.
	require.NoError(t, store.AppendEntry(ctx, entry("pe_refund", "usr_a", TypeRefunded, 500)))

	s, err := store.Summary(ctx, "usr_a", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(3000), s.Balance)
	assert.Equal(t, int64(3000), s.TotalEarned)
	assert.Equal(t, int64(500), s.TotalSpent)
	assert.Equal(t, int64(2000), s.EarnedToday)
	assert.Equal(t, int64(3000), s.Available)
}

func TestHoldLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.AppendEntry(ctx, entry("pe_h", "usr_a", TypeEarnedPurchase, 5000)))

	now := time.Now().UTC()
	h := &Hold{
		ID: "ph_1", UserID: "usr_a", Amount: 2000,
		CorrelationID: "corr_1", Status: HoldActive,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateHold(ctx, h))

	// correlation_id is unique: double-initiating the same payment fails.
	dup := *h
	dup.ID = "ph_dup"
	require.Error(t, store.CreateHold(ctx, &dup))

	held, err := store.ActiveHoldTotal(ctx, "usr_a")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), held)

	s, err := store.Summary(ctx, "usr_a", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), s.Balance)
	assert.Equal(t, int64(3000), s.Available)

	got, err := store.GetHoldByCorrelation(ctx, "corr_1")
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)

	got.Status = HoldReleased
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpdateHold(ctx, got))

	held, err = store.ActiveHoldTotal(ctx, "usr_a")
	require.NoError(t, err)
	assert.Zero(t, held)

	_, err = store.GetHoldByCorrelation(ctx, "corr_missing")
	assert.ErrorIs(t, err, ErrHoldNotFound)
}

func TestExpiringEntriesSkipsAlreadyInverted(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	e1 := entry("pe_exp1", "usr_a", TypeEarnedPurchase, 1000)
	e1.ExpiresAt = &past
	require.NoError(t, store.AppendEntry(ctx, e1))
	e2 := entry("pe_exp2", "usr_a", TypeEarnedPurchase, 2000)
	e2.ExpiresAt = &past
	require.NoError(t, store.AppendEntry(ctx, e2))

	due, err := store.ExpiringEntries(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)

	inv := entry("pe_inv1", "usr_a", TypeExpired, -1000)
	inv.ExpiredBy = "pe_exp1"
	require.NoError(t, store.AppendEntry(ctx, inv))

	due, err = store.ExpiringEntries(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "pe_exp2", due[0].ID)

	// The partial unique index admits one inversion per source row.
	inv2 := entry("pe_inv1b", "usr_a", TypeExpired, -1000)
	inv2.ExpiredBy = "pe_exp1"
	require.Error(t, store.AppendEntry(ctx, inv2))
}

func TestFindReferralEntryMatchesPaymentThenWindow(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	paidAt := time.Now().UTC()

	stamped := entry("pe_ref1", "usr_ref", TypeEarnedReferral, 3000)
	stamped.PaymentID = "pay_1"
	require.NoError(t, store.AppendEntry(ctx, stamped))

	got, err := store.FindReferralEntry(ctx, "pay_1", paidAt, "usr_ref", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "pe_ref1", got.ID)

	// Legacy rows without a payment id match by time proximity.
	legacy := entry("pe_ref2", "usr_ref2", TypeEarnedReferral, 1500)
	legacy.CreatedAt = paidAt.Add(-time.Minute)
	require.NoError(t, store.AppendEntry(ctx, legacy))

	got, err = store.FindReferralEntry(ctx, "pay_other", paidAt, "usr_ref2", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "pe_ref2", got.ID)

	_, err = store.FindReferralEntry(ctx, "pay_none", paidAt, "usr_nobody", 10*time.Minute)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestHistoryPaginatesWithCursor(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		e := entry(fmt.Sprintf("pe_p%d", i), "usr_a", TypeEarnedPurchase, 100)
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.AppendEntry(ctx, e))
	}

	page1, next, err := store.History(ctx, HistoryQuery{UserID: "usr_a", Limit: 3})
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.NotEmpty(t, next)
	assert.Equal(t, "pe_p4", page1[0].ID)
	assert.Equal(t, "pe_p2", page1[2].ID)

	page2, next2, err := store.History(ctx, HistoryQuery{UserID: "usr_a", Limit: 3, Cursor: next})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Empty(t, next2)
	assert.Equal(t, "pe_p1", page2[0].ID)
	assert.Equal(t, "pe_p0", page2[1].ID)
}
