package shop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/errs"
)

func newTestManager() *Manager {
	return NewManager(NewMemoryStore())
}

func approveShop(t *testing.T, m *Manager, shopID string, capacity int) *Shop {
	t.Helper()
	rate := 10.0
	s, err := m.Approve(context.Background(), "adm_1", shopID, ApproveInput{
		Approved:       true,
		CommissionRate: &rate,
		Capacity:       &capacity,
	}, "127.0.0.1")
	require.NoError(t, err)
	return s
}

func TestRegisterStartsPending(t *testing.T) {
	m := newTestManager()

	s, err := m.Register(context.Background(), RegisterInput{OwnerID: "usr_1", Name: "바람 헤어", Type: "hair"})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, VerificationPending, s.Verification)
	assert.Equal(t, 1, s.Capacity)
	assert.False(t, s.Bookable())
}

func TestRegisterRequiresName(t *testing.T) {
	m := newTestManager()

	_, err := m.Register(context.Background(), RegisterInput{OwnerID: "usr_1"})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestApproveActivatesShop(t *testing.T) {
	m := newTestManager()
	s, err := m.Register(context.Background(), RegisterInput{OwnerID: "usr_1", Name: "바람 헤어"})
	require.NoError(t, err)

	s = approveShop(t, m, s.ID, 3)

	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, VerificationVerified, s.Verification)
	assert.Equal(t, 10.0, s.CommissionRate)
	assert.Equal(t, 3, s.Capacity)
	assert.True(t, s.Bookable())
}

func TestApproveIsIdempotent(t *testing.T) {
	m := newTestManager()
	s, err := m.Register(context.Background(), RegisterInput{OwnerID: "usr_1", Name: "바람 헤어"})
	require.NoError(t, err)
	approveShop(t, m, s.ID, 2)

	again, err := m.Approve(context.Background(), "adm_1", s.ID, ApproveInput{Approved: true}, "")
	require.NoError(t, err)
	assert.Equal(t, VerificationVerified, again.Verification)
	assert.Equal(t, 2, again.Capacity)
}

func TestApproveRejectsBadCommissionRate(t *testing.T) {
	m := newTestManager()
	s, err := m.Register(context.Background(), RegisterInput{OwnerID: "usr_1", Name: "바람 헤어"})
	require.NoError(t, err)

	rate := 101.0
	_, err = m.Approve(context.Background(), "adm_1", s.ID, ApproveInput{Approved: true, CommissionRate: &rate}, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestRejectDoesNotActivate(t *testing.T) {
	m := newTestManager()
	s, err := m.Register(context.Background(), RegisterInput{OwnerID: "usr_1", Name: "바람 헤어"})
	require.NoError(t, err)

	s, err = m.Approve(context.Background(), "adm_1", s.ID, ApproveInput{Approved: false}, "")
	require.NoError(t, err)
	assert.Equal(t, VerificationRejected, s.Verification)
	assert.Equal(t, StatusPending, s.Status)
	assert.False(t, s.Bookable())
}

func TestBrowseListsOnlyBookableShops(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	a, err := m.Register(ctx, RegisterInput{OwnerID: "usr_1", Name: "A샵"})
	require.NoError(t, err)
	approveShop(t, m, a.ID, 1)
	_, err = m.Register(ctx, RegisterInput{OwnerID: "usr_2", Name: "B샵"})
	require.NoError(t, err)

	shops, err := m.Browse(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, shops, 1)
	assert.Equal(t, a.ID, shops[0].ID)
}

func TestUpdateStatusSoftDeletes(t *testing.T) {
	m := newTestManager()
	s, err := m.Register(context.Background(), RegisterInput{OwnerID: "usr_1", Name: "바람 헤어"})
	require.NoError(t, err)

	_, err = m.UpdateStatus(context.Background(), "adm_1", s.ID, StatusDeleted, "")
	require.NoError(t, err)

	_, err = m.Get(context.Background(), s.ID)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestAddServiceValidatesPriceRange(t *testing.T) {
	m := newTestManager()
	s, err := m.Register(context.Background(), RegisterInput{OwnerID: "usr_1", Name: "바람 헤어"})
	require.NoError(t, err)

	_, err = m.AddService(context.Background(), s.ID, ServiceInput{
		Name: "컷", PriceMin: 30000, PriceMax: 20000, DurationMinutes: 60,
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestServiceLifecycle(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	s, err := m.Register(ctx, RegisterInput{OwnerID: "usr_1", Name: "바람 헤어"})
	require.NoError(t, err)

	svc, err := m.AddService(ctx, s.ID, ServiceInput{
		Name: "컷", PriceMin: 20000, PriceMax: 30000, DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.True(t, svc.Available)

	off := false
	svc, err = m.UpdateService(ctx, s.ID, svc.ID, ServiceInput{
		Name: "컷", PriceMin: 20000, PriceMax: 35000, DurationMinutes: 60, Available: &off,
	})
	require.NoError(t, err)
	assert.False(t, svc.Available)
	assert.Equal(t, int64(35000), svc.PriceMax)

	services, err := m.ListServices(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, services, 1)
}

func TestUpdateServiceFromAnotherShopIsNotFound(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	a, err := m.Register(ctx, RegisterInput{OwnerID: "usr_1", Name: "A샵"})
	require.NoError(t, err)
	b, err := m.Register(ctx, RegisterInput{OwnerID: "usr_2", Name: "B샵"})
	require.NoError(t, err)

	svc, err := m.AddService(ctx, a.ID, ServiceInput{Name: "컷", PriceMax: 30000, DurationMinutes: 60})
	require.NoError(t, err)

	_, err = m.UpdateService(ctx, b.ID, svc.ID, ServiceInput{Name: "컷", PriceMax: 30000, DurationMinutes: 60})
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}
