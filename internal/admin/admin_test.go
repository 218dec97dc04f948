package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/points"
	"github.com/modubeauty/modu/internal/reservation"
	"github.com/modubeauty/modu/internal/shop"
	"github.com/modubeauty/modu/internal/user"
)

type adminFixture struct {
	svc    *Service
	users  *user.Service
	ledger *points.Ledger
	userA  *user.User
	userB  *user.User
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	ctx := context.Background()

	users := user.NewService(user.NewMemoryStore())
	a, err := users.Signup(ctx, user.SignupInput{Email: "minji@example.com", Password: "password1", Name: "민지"})
	require.NoError(t, err)
	b, err := users.Signup(ctx, user.SignupInput{Email: "haerin@example.com", Password: "password1", Name: "해린"})
	require.NoError(t, err)

	ledger := points.NewLedger(points.NewMemoryStore())
	shops := shop.NewManager(shop.NewMemoryStore())
	reservations := reservation.NewService(reservation.NewMemoryStore(), shops, ledger, reservation.DefaultConfig())

	return &adminFixture{
		svc:    NewService(users, ledger, reservations),
		users:  users,
		ledger: ledger,
		userA:  a,
		userB:  b,
	}
}

func TestBulkSuspend(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	results, err := f.svc.BulkUserAction(ctx, "adm_1", BulkActionInput{
		UserIDs: []string{f.userA.ID, f.userB.ID},
		Action:  "suspend",
		Reason:  "abuse",
	}, "10.0.0.1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)

	u, err := f.users.Get(ctx, f.userA.ID)
	require.NoError(t, err)
	assert.Equal(t, user.StatusSuspended, u.Status)
}

func TestBulkActionContinuesPastBadIDs(t *testing.T) {
	f := newAdminFixture(t)

	results, err := f.svc.BulkUserAction(context.Background(), "adm_1", BulkActionInput{
		UserIDs: []string{f.userA.ID, "usr_missing"},
		Action:  "suspend",
	}, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.NotEmpty(t, results[1].Error)
}

func TestBulkActionValidation(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	_, err := f.svc.BulkUserAction(ctx, "adm_1", BulkActionInput{UserIDs: []string{f.userA.ID}, Action: "promote"}, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	ids := make([]string, maxBulkUsers+1)
	for i := range ids {
		ids[i] = f.userA.ID
	}
	_, err = f.svc.BulkUserAction(ctx, "adm_1", BulkActionInput{UserIDs: ids, Action: "suspend"}, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestAdjustPointsCreditAndDebit(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	entry, err := f.svc.AdjustPoints(ctx, "adm_1", AdjustInput{
		UserID:      f.userA.ID,
		Amount:      5000,
		Description: "CS 보상",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, points.TypeAdjusted, entry.Type)

	available, err := f.ledger.Available(ctx, f.userA.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), available)

	_, err = f.svc.AdjustPoints(ctx, "adm_1", AdjustInput{
		UserID:      f.userA.ID,
		Amount:      -2000,
		Description: "중복 지급 회수",
	}, "")
	require.NoError(t, err)

	available, err = f.ledger.Available(ctx, f.userA.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), available)
}

func TestAdjustPointsCannotOverdraw(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.svc.AdjustPoints(context.Background(), "adm_1", AdjustInput{
		UserID:      f.userA.ID,
		Amount:      -1000,
		Description: "회수",
	}, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindInsufficientPoints, errs.KindOf(err))
}

func TestAdjustPointsValidation(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	_, err := f.svc.AdjustPoints(ctx, "adm_1", AdjustInput{UserID: f.userA.ID, Amount: 1000}, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = f.svc.AdjustPoints(ctx, "adm_1", AdjustInput{UserID: "usr_missing", Amount: 1000, Description: "보상"}, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

type fakeReconciler struct {
	moved int
	err   error
	runs  int
}

func (f *fakeReconciler) Reconcile(ctx context.Context) (int, error) {
	f.runs++
	return f.moved, f.err
}

func TestReconcilePayments(t *testing.T) {
	f := newAdminFixture(t)
	rec := &fakeReconciler{moved: 3}
	f.svc.WithReconciler(rec)

	moved, err := f.svc.ReconcilePayments(context.Background(), "adm_1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, moved)
	assert.Equal(t, 1, rec.runs)
}

func TestReconcilePaymentsUnconfigured(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.svc.ReconcilePayments(context.Background(), "adm_1", "")
	require.Error(t, err)
}

func TestStuckReservationsEmpty(t *testing.T) {
	f := newAdminFixture(t)

	stuck, err := f.svc.StuckReservations(context.Background(), 24*time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}
