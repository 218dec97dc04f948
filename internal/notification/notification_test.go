package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modubeauty/modu/internal/errs"
)

type notifFixture struct {
	store   *MemoryStore
	tokens  *MemoryTokenStore
	push    *FakePush
	outbox  *Outbox
	worker  *Worker
	now     time.Time
	current *time.Time
}

func newNotifFixture(t *testing.T) *notifFixture {
	t.Helper()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	current := now

	store := NewMemoryStore()
	tokens := NewMemoryTokenStore()
	push := NewFakePush()

	outbox := NewOutbox(store)
	outbox.now = func() time.Time { return current }
	worker := NewWorker(store, tokens, push)
	worker.now = func() time.Time { return current }

	return &notifFixture{
		store: store, tokens: tokens, push: push,
		outbox: outbox, worker: worker,
		now: now, current: &current,
	}
}

func (f *notifFixture) advance(d time.Duration) {
	*f.current = f.current.Add(d)
}

func (f *notifFixture) register(t *testing.T, userID, token, deviceID string) {
	t.Helper()
	reg := NewRegistry(f.tokens)
	require.NoError(t, reg.Register(context.Background(), userID, token, "android", deviceID))
}

func TestEnqueueDeduplicates(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()

	err := f.outbox.Enqueue(ctx, "usr_1", TemplatePaymentApproved, "pay_1", map[string]string{"amount": "17000"})
	require.NoError(t, err)
	// Webhook redelivery enqueues the same key again.
	err = f.outbox.Enqueue(ctx, "usr_1", TemplatePaymentApproved, "pay_1", map[string]string{"amount": "17000"})
	require.NoError(t, err)

	assert.Len(t, f.store.All(), 1)

	// A different correlation is a new notification.
	err = f.outbox.Enqueue(ctx, "usr_1", TemplatePaymentApproved, "pay_2", nil)
	require.NoError(t, err)
	assert.Len(t, f.store.All(), 2)
}

func TestEnqueueRejectsUnknownTemplate(t *testing.T) {
	f := newNotifFixture(t)

	err := f.outbox.Enqueue(context.Background(), "usr_1", "no_such_template", "cor_1", nil)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestRenderReferralCommission(t *testing.T) {
	title, body, err := Render(TemplateReferralCommission, map[string]string{
		"name":   "민지",
		"amount": "1,700",
	})
	require.NoError(t, err)
	assert.Equal(t, "포인트 적립", title)
	assert.Equal(t, "민지 님 덕분에 +1,700 point", body)
}

func TestRenderLeavesMissingParamsVisible(t *testing.T) {
	_, body, err := Render(TemplateReservationConfirmed, map[string]string{"shopName": "살롱드모두"})
	require.NoError(t, err)
	assert.Contains(t, body, "살롱드모두")
	assert.Contains(t, body, "{datetime}")
}

func TestRegistryUpsertSupersedesDevice(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()
	reg := NewRegistry(f.tokens)

	require.NoError(t, reg.Register(ctx, "usr_1", "tok_old", "ios", "dev_1"))
	require.NoError(t, reg.Register(ctx, "usr_1", "tok_new", "ios", "dev_1"))

	active, err := f.tokens.ListActive(ctx, "usr_1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "tok_new", active[0].Token)
}

func TestRegistryRejectsUnknownPlatform(t *testing.T) {
	f := newNotifFixture(t)
	reg := NewRegistry(f.tokens)

	err := reg.Register(context.Background(), "usr_1", "tok_1", "blackberry", "dev_1")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestDrainDeliversToActiveDevices(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()
	f.register(t, "usr_1", "tok_a", "dev_a")
	f.register(t, "usr_1", "tok_b", "dev_b")

	err := f.outbox.Enqueue(ctx, "usr_1", TemplatePaymentApproved, "pay_1", map[string]string{"amount": "17000"})
	require.NoError(t, err)

	sent, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	deliveries := f.push.Sent()
	require.Len(t, deliveries, 2)
	assert.Equal(t, "결제 완료", deliveries[0].Title)
	assert.Equal(t, "17000원 결제가 완료되었습니다.", deliveries[0].Body)
	assert.Equal(t, "pay_1", deliveries[0].Data["correlationId"])

	rows := f.store.All()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusSent, rows[0].Status)
	require.NotNil(t, rows[0].SentAt)
}

func TestDrainConcludesWhenUserHasNoDevices(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()

	require.NoError(t, f.outbox.Enqueue(ctx, "usr_nodevice", TemplatePointsExpiring, "exp_1", nil))

	sent, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	rows := f.store.All()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusSent, rows[0].Status)
	assert.Equal(t, "no_active_tokens", rows[0].LastError)
}

func TestDrainDeactivatesDeadTokens(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()
	f.register(t, "usr_1", "tok_dead", "dev_old")
	f.register(t, "usr_1", "tok_live", "dev_new")
	f.push.FailToken("tok_dead", CodeInvalidToken)

	require.NoError(t, f.outbox.Enqueue(ctx, "usr_1", TemplateReservationExpired, "rsv_1", map[string]string{"shopName": "살롱드모두"}))

	sent, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// The live token got the message, the dead one is gone for good.
	require.Len(t, f.push.Sent(), 1)
	assert.Equal(t, "tok_live", f.push.Sent()[0].Token)

	active, err := f.tokens.ListActive(ctx, "usr_1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "tok_live", active[0].Token)
}

func TestDrainReschedulesTransientFailures(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()
	f.register(t, "usr_1", "tok_a", "dev_a")
	f.push.FailToken("tok_a", CodeUnavailable)

	require.NoError(t, f.outbox.Enqueue(ctx, "usr_1", TemplatePaymentApproved, "pay_1", map[string]string{"amount": "17000"}))

	sent, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	rows := f.store.All()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusPending, rows[0].Status)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.True(t, rows[0].NextAttemptAt.After(f.now))

	// Not due yet: an immediate second drain is a no-op.
	sent, err = f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, f.store.All()[0].Attempts)
}

func TestDrainFailsAfterMaxAttempts(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()
	f.register(t, "usr_1", "tok_a", "dev_a")
	f.push.FailToken("tok_a", CodeRateLimited)
	f.worker.WithMaxAttempts(3)

	require.NoError(t, f.outbox.Enqueue(ctx, "usr_1", TemplatePaymentApproved, "pay_1", nil))

	for i := 0; i < 3; i++ {
		_, err := f.worker.Drain(ctx)
		require.NoError(t, err)
		f.advance(time.Hour) // past any backoff
	}

	rows := f.store.All()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusFailed, rows[0].Status)
	assert.Equal(t, 3, rows[0].Attempts)
	assert.NotEmpty(t, rows[0].LastError)
}

func TestDrainRecoversAfterTransientOutage(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()
	f.register(t, "usr_1", "tok_a", "dev_a")
	f.push.FailToken("tok_a", CodeUnavailable)

	require.NoError(t, f.outbox.Enqueue(ctx, "usr_1", TemplateReferralCommission, "pay_1", map[string]string{"name": "민지", "amount": "1,700"}))

	_, err := f.worker.Drain(ctx)
	require.NoError(t, err)

	// Push service comes back.
	f.push = NewFakePush()
	f.worker.push = f.push
	f.advance(time.Hour)

	sent, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, StatusSent, f.store.All()[0].Status)
	require.Len(t, f.push.Sent(), 1)
	assert.Equal(t, "민지 님 덕분에 +1,700 point", f.push.Sent()[0].Body)
}

func TestDrainFailsUnknownTemplateRow(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()
	f.register(t, "usr_1", "tok_a", "dev_a")

	// A row whose template was removed after it was enqueued.
	_, err := f.store.Insert(ctx, &Notification{
		ID: "ntf_stale", UserID: "usr_1", TemplateID: "retired_template",
		CorrelationID: "cor_1", Status: StatusPending,
		NextAttemptAt: f.now, CreatedAt: f.now, UpdatedAt: f.now,
	})
	require.NoError(t, err)

	sent, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	row, err := f.store.Get(ctx, "ntf_stale")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, row.Status)
	assert.Equal(t, "unknown_template", row.LastError)
}

func TestDeactivateDeviceStopsDelivery(t *testing.T) {
	f := newNotifFixture(t)
	ctx := context.Background()
	reg := NewRegistry(f.tokens)
	f.register(t, "usr_1", "tok_a", "dev_a")

	require.NoError(t, reg.DeactivateDevice(ctx, "usr_1", "dev_a"))

	require.NoError(t, f.outbox.Enqueue(ctx, "usr_1", TemplatePaymentApproved, "pay_1", nil))
	sent, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, "no_active_tokens", f.store.All()[0].LastError)
}
