package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/errs"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryStore())
}

func TestSignupIssuesReferralCode(t *testing.T) {
	s := newTestService(t)

	u, err := s.Signup(context.Background(), SignupInput{
		Email:    "mina@example.com",
		Password: "correct-horse",
		Name:     "Mina",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ReferralCode)
	assert.Equal(t, RoleCustomer, u.Role)
	assert.Equal(t, StatusActive, u.Status)
}

func TestSignupRejectsAdminRole(t *testing.T) {
	s := newTestService(t)

	_, err := s.Signup(context.Background(), SignupInput{
		Email:    "a@example.com",
		Password: "correct-horse",
		Role:     RoleAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestSignupDuplicateEmail(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Signup(ctx, SignupInput{Email: "dup@example.com", Password: "password1", Name: "A"})
	require.NoError(t, err)

	_, err = s.Signup(ctx, SignupInput{Email: "dup@example.com", Password: "password2", Name: "B"})
	require.Error(t, err)
	assert.Equal(t, errs.KindConflictState, errs.KindOf(err))
}

func TestAuthenticate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, err := s.Signup(ctx, SignupInput{Email: "jin@example.com", Password: "password1", Name: "Jin"})
	require.NoError(t, err)

	got, err := s.Authenticate(ctx, "Jin@Example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = s.Authenticate(ctx, "jin@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthInvalid, errs.KindOf(err))

	_, err = s.Authenticate(ctx, "nobody@example.com", "password1")
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthInvalid, errs.KindOf(err))
}

func TestAuthenticateSuspended(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	u, err := s.Signup(ctx, SignupInput{Email: "s@example.com", Password: "password1"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "admin-1", u.ID, StatusSuspended, "127.0.0.1")
	require.NoError(t, err)

	_, err = s.Authenticate(ctx, "s@example.com", "password1")
	require.Error(t, err)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestAuthenticateSocialFindOrCreate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, err := s.AuthenticateSocial(ctx, "kakao", "kakao-123", "k@example.com", "Kyo")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ReferralCode)

	again, err := s.AuthenticateSocial(ctx, "kakao", "kakao-123", "k@example.com", "Kyo")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestSetReferredBy(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a, err := s.Signup(ctx, SignupInput{Email: "a@x.com", Password: "password1", Name: "A"})
	require.NoError(t, err)
	b, err := s.Signup(ctx, SignupInput{Email: "b@x.com", Password: "password1", Name: "B"})
	require.NoError(t, err)

	require.NoError(t, s.SetReferredBy(ctx, b.ID, a.ReferralCode))

	// Set once: a second code is rejected.
	err = s.SetReferredBy(ctx, b.ID, a.ReferralCode)
	require.Error(t, err)
	assert.Equal(t, errs.KindConflictState, errs.KindOf(err))
}

func TestSetReferredBySelf(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a, err := s.Signup(ctx, SignupInput{Email: "a@x.com", Password: "password1"})
	require.NoError(t, err)

	err = s.SetReferredBy(ctx, a.ID, a.ReferralCode)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestSetReferredByCycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a, err := s.Signup(ctx, SignupInput{Email: "a@x.com", Password: "password1"})
	require.NoError(t, err)
	b, err := s.Signup(ctx, SignupInput{Email: "b@x.com", Password: "password1"})
	require.NoError(t, err)
	c, err := s.Signup(ctx, SignupInput{Email: "c@x.com", Password: "password1"})
	require.NoError(t, err)

	// a <- b <- c, then a referred by c would loop.
	require.NoError(t, s.SetReferredBy(ctx, b.ID, a.ReferralCode))
	require.NoError(t, s.SetReferredBy(ctx, c.ID, b.ReferralCode))

	err = s.SetReferredBy(ctx, a.ID, c.ReferralCode)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

type fakeRevoker struct {
	calls []string
}

func (f *fakeRevoker) RevokeAllForUser(ctx context.Context, userID, reason string) error {
	f.calls = append(f.calls, userID+":"+reason)
	return nil
}

func TestUpdateRoleRevokesSessions(t *testing.T) {
	rev := &fakeRevoker{}
	s := NewService(NewMemoryStore()).WithRevoker(rev)
	ctx := context.Background()

	u, err := s.Signup(ctx, SignupInput{Email: "o@x.com", Password: "password1"})
	require.NoError(t, err)

	updated, err := s.UpdateRole(ctx, "admin-1", u.ID, RoleShopOwner, "shop-1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, RoleShopOwner, updated.Role)
	assert.Equal(t, "shop-1", updated.ShopID)
	require.Len(t, rev.calls, 1)
	assert.Equal(t, u.ID+":role_changed", rev.calls[0])
}

func TestUpdateRoleShopRoleRequiresShop(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	u, err := s.Signup(ctx, SignupInput{Email: "o@x.com", Password: "password1"})
	require.NoError(t, err)

	_, err = s.UpdateRole(ctx, "admin-1", u.ID, RoleShopManager, "", "")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestMarkInfluencerIdempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	u, err := s.Signup(ctx, SignupInput{Email: "i@x.com", Password: "password1"})
	require.NoError(t, err)

	changed, err := s.MarkInfluencer(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.MarkInfluencer(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsInfluencer)
	require.NotNil(t, got.InfluencerQualifiedAt)
}
