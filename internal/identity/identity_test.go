package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/user"
)

type idFixture struct {
	svc    *Service
	users  *user.Service
	broker *FakeBroker
	userA  *user.User
	userB  *user.User
	now    time.Time
}

func newIDFixture(t *testing.T) *idFixture {
	t.Helper()
	ctx := context.Background()

	users := user.NewService(user.NewMemoryStore())
	a, err := users.Signup(ctx, user.SignupInput{Email: "minji@example.com", Password: "password1", Name: "민지"})
	require.NoError(t, err)
	b, err := users.Signup(ctx, user.SignupInput{Email: "haerin@example.com", Password: "password1", Name: "해린"})
	require.NoError(t, err)

	broker := NewFakeBroker()
	svc := NewService(NewMemoryStore(), users, broker)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &idFixture{svc: svc, users: users, broker: broker, userA: a, userB: b, now: now}
}

func passResult(ci string) *BrokerResult {
	return &BrokerResult{
		Success:   true,
		CI:        ci,
		DI:        "di-" + ci,
		Name:      "김민지",
		BirthDate: "19960507",
		Gender:    "F",
		Operator:  "SKT",
	}
}

func TestPrepareReturnsClientToken(t *testing.T) {
	f := newIDFixture(t)

	result, err := f.svc.Prepare(context.Background(), "vrf_1", f.userA.ID, Restrictions{MinAge: 19})
	require.NoError(t, err)
	assert.Equal(t, "tok_vrf_1", result.ClientToken)

	rec, err := f.svc.Status(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, rec.Status)
	assert.Equal(t, 19, rec.Restrictions.MinAge)
}

func TestPrepareIsIdempotentPerUser(t *testing.T) {
	f := newIDFixture(t)
	ctx := context.Background()

	first, err := f.svc.Prepare(ctx, "vrf_1", f.userA.ID, Restrictions{})
	require.NoError(t, err)
	again, err := f.svc.Prepare(ctx, "vrf_1", f.userA.ID, Restrictions{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = f.svc.Prepare(ctx, "vrf_1", f.userB.ID, Restrictions{})
	require.Error(t, err)
	assert.Equal(t, errs.KindConflictIdempotent, errs.KindOf(err))
}

func TestVerifySuccess(t *testing.T) {
	f := newIDFixture(t)
	ctx := context.Background()

	_, err := f.svc.Prepare(ctx, "vrf_1", f.userA.ID, Restrictions{MinAge: 19})
	require.NoError(t, err)
	f.broker.SetResult("vrf_1", passResult("ci-minji"))

	rec, err := f.svc.Verify(ctx, "vrf_1")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, rec.Status)
	assert.Equal(t, "ci-minji", rec.CI)
	assert.Equal(t, "김민지", rec.Name)
	require.NotNil(t, rec.VerifiedAt)

	// Re-verify reads the concluded record.
	again, err := f.svc.Verify(ctx, "vrf_1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
}

func TestVerifyEnforcesMinAgeServerSide(t *testing.T) {
	f := newIDFixture(t)
	ctx := context.Background()

	_, err := f.svc.Prepare(ctx, "vrf_1", f.userA.ID, Restrictions{MinAge: 19})
	require.NoError(t, err)
	r := passResult("ci-minji")
	r.BirthDate = "20100101" // 16 at the fixture clock
	f.broker.SetResult("vrf_1", r)

	rec, err := f.svc.Verify(ctx, "vrf_1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "age_restriction", rec.FailReason)
}

func TestVerifyRejectsDuplicateCI(t *testing.T) {
	f := newIDFixture(t)
	ctx := context.Background()

	_, err := f.svc.Prepare(ctx, "vrf_a", f.userA.ID, Restrictions{})
	require.NoError(t, err)
	f.broker.SetResult("vrf_a", passResult("ci-shared"))
	_, err = f.svc.Verify(ctx, "vrf_a")
	require.NoError(t, err)

	// Same person, different account.
	_, err = f.svc.Prepare(ctx, "vrf_b", f.userB.ID, Restrictions{})
	require.NoError(t, err)
	f.broker.SetResult("vrf_b", passResult("ci-shared"))

	_, err = f.svc.Verify(ctx, "vrf_b")
	require.Error(t, err)
	assert.Equal(t, errs.KindDuplicateUser, errs.KindOf(err))

	rec, err := f.svc.store.GetByVerificationID(ctx, "vrf_b")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "duplicate_user", rec.FailReason)
}

func TestDeletedHolderFreesCI(t *testing.T) {
	f := newIDFixture(t)
	ctx := context.Background()

	_, err := f.svc.Prepare(ctx, "vrf_a", f.userA.ID, Restrictions{})
	require.NoError(t, err)
	f.broker.SetResult("vrf_a", passResult("ci-shared"))
	_, err = f.svc.Verify(ctx, "vrf_a")
	require.NoError(t, err)

	_, err = f.users.UpdateStatus(ctx, "adm_1", f.userA.ID, user.StatusDeleted, "")
	require.NoError(t, err)

	_, err = f.svc.Prepare(ctx, "vrf_b", f.userB.ID, Restrictions{})
	require.NoError(t, err)
	f.broker.SetResult("vrf_b", passResult("ci-shared"))

	rec, err := f.svc.Verify(ctx, "vrf_b")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, rec.Status)
}

func TestVerifyRecordsBrokerRejection(t *testing.T) {
	f := newIDFixture(t)
	ctx := context.Background()

	_, err := f.svc.Prepare(ctx, "vrf_1", f.userA.ID, Restrictions{})
	require.NoError(t, err)
	f.broker.SetResult("vrf_1", &BrokerResult{Success: false, FailReason: "carrier_mismatch"})

	rec, err := f.svc.Verify(ctx, "vrf_1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "carrier_mismatch", rec.FailReason)

	// A failed verification stays failed.
	_, err = f.svc.Verify(ctx, "vrf_1")
	require.Error(t, err)
	assert.Equal(t, errs.KindConflictState, errs.KindOf(err))
}

func TestVerifyPropagatesBrokerOutage(t *testing.T) {
	f := newIDFixture(t)
	ctx := context.Background()

	_, err := f.svc.Prepare(ctx, "vrf_1", f.userA.ID, Restrictions{})
	require.NoError(t, err)
	f.broker.Fail(errs.E(errs.KindGatewayUnavailable, "identity broker circuit open"))

	_, err = f.svc.Verify(ctx, "vrf_1")
	require.Error(t, err)
	assert.Equal(t, errs.KindGatewayUnavailable, errs.KindOf(err))

	// The record is untouched; the client can retry.
	rec, err := f.svc.store.GetByVerificationID(ctx, "vrf_1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, rec.Status)
}

func TestAgeAt(t *testing.T) {
	ref := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	age, err := ageAt("19960507", ref)
	require.NoError(t, err)
	assert.Equal(t, 29, age) // birthday not yet reached this year

	age, err = ageAt("19960101", ref)
	require.NoError(t, err)
	assert.Equal(t, 30, age)

	_, err = ageAt("not-a-date", ref)
	require.Error(t, err)
}
