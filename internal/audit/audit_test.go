package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainWriter(t *testing.T, w *Writer, store *MemoryStore, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	deadline := time.After(5 * time.Second)
	for {
		store.mu.RLock()
		n := len(store.audits) + len(store.securities)
		store.mu.RUnlock()
		if n >= want {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("writer flushed %d of %d events", n, want)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestWriterFlushesBatch(t *testing.T) {
	store := NewMemoryStore()
	w := NewWriter(store)
	rec := NewRecorder(w)

	ctx := context.Background()
	for i := 0; i < 150; i++ {
		rec.Audit(ctx, "adm_1", "user.role_changed", "user", fmt.Sprintf("usr_%d", i),
			map[string]any{"role": "customer"}, map[string]any{"role": "shop_owner"}, "10.0.0.1")
	}
	rec.Security(ctx, "usr_9", "rate_limit_exceeded", map[string]any{"ip": "10.0.0.9"})

	drainWriter(t, w, store, 151)

	events, _, err := store.QueryAudit(ctx, AuditQuery{ActorID: "adm_1", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, events, 100)

	sec, _, err := store.QuerySecurity(ctx, SecurityQuery{Kind: "rate_limit_exceeded"})
	require.NoError(t, err)
	require.Len(t, sec, 1)
	assert.Equal(t, "usr_9", sec[0].ActorID)
}

func TestWriterDropsWhenFull(t *testing.T) {
	store := NewMemoryStore()
	w := NewWriter(store)
	rec := NewRecorder(w)

	// Writer not started: the channel fills and overflow is counted.
	ctx := context.Background()
	for i := 0; i < writerChanSize+10; i++ {
		rec.Security(ctx, "usr_1", "probe", nil)
	}
	assert.Equal(t, int64(10), w.Dropped())
}

func TestQueryAuditFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendAuditBatch(ctx, []*AuditEvent{
		{ID: "aud_1", ActorID: "adm_1", Action: "shop.approval_decided", ResourceType: "shop", ResourceID: "shp_1", CreatedAt: base},
		{ID: "aud_2", ActorID: "adm_2", Action: "user.role_changed", ResourceType: "user", ResourceID: "usr_1", CreatedAt: base.Add(time.Hour)},
		{ID: "aud_3", ActorID: "adm_1", Action: "points.adjusted", ResourceType: "user", ResourceID: "usr_1", CreatedAt: base.Add(2 * time.Hour)},
	}))

	events, _, err := store.QueryAudit(ctx, AuditQuery{ActorID: "adm_1"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, _, err = store.QueryAudit(ctx, AuditQuery{ResourceType: "user", ResourceID: "usr_1"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, _, err = store.QueryAudit(ctx, AuditQuery{From: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "aud_3", events[0].ID)
}

func TestQueryAuditPaginates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var batch []*AuditEvent
	for i := 0; i < 7; i++ {
		batch = append(batch, &AuditEvent{
			ID:           fmt.Sprintf("aud_%02d", i),
			ActorID:      "adm_1",
			Action:       "user.status_changed",
			ResourceType: "user",
			ResourceID:   fmt.Sprintf("usr_%d", i),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, store.AppendAuditBatch(ctx, batch))

	page1, cursor, err := store.QueryAudit(ctx, AuditQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.NotEmpty(t, cursor)
	assert.Equal(t, "aud_06", page1[0].ID)

	page2, cursor2, err := store.QueryAudit(ctx, AuditQuery{Limit: 3, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page2, 3)
	assert.Equal(t, "aud_03", page2[0].ID)
	require.NotEmpty(t, cursor2)

	page3, cursor3, err := store.QueryAudit(ctx, AuditQuery{Limit: 3, Cursor: cursor2})
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Empty(t, cursor3)
}

func TestInTxFallsBackWithoutAppender(t *testing.T) {
	store := NewMemoryStore()
	w := NewWriter(store)
	rec := NewRecorder(w)

	err := rec.AuditInTx(context.Background(), nil, "adm_1", "shop.status_changed", "shop", "shp_1", nil, nil, "")
	require.NoError(t, err)
	drainWriter(t, w, store, 1)
}

func TestInTxUsesAppender(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(NewWriter(NewMemoryStore())).WithTxAppender(store)
	ctx := context.Background()

	require.NoError(t, rec.AuditInTx(ctx, nil, "adm_1", "reservation.created", "reservation", "rsv_1", nil, map[string]any{"status": "requested"}, ""))
	require.NoError(t, rec.SecurityInTx(ctx, nil, "usr_1", "webhook_signature_invalid", nil))

	events, _, err := store.QueryAudit(ctx, AuditQuery{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "reservation.created", events[0].Action)

	sec, _, err := store.QuerySecurity(ctx, SecurityQuery{})
	require.NoError(t, err)
	assert.Len(t, sec, 1)
}
