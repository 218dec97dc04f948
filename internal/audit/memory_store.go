package audit

import (
	"context"
	"database/sql"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	audits     []*AuditEvent
	securities []*SecurityEvent
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) AppendAuditBatch(ctx context.Context, events []*AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		cp := *e
		m.audits = append(m.audits, &cp)
	}
	return nil
}

func (m *MemoryStore) AppendSecurityBatch(ctx context.Context, events []*SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		cp := *e
		m.securities = append(m.securities, &cp)
	}
	return nil
}

// AppendAuditTx ignores the transaction; the memory store has none.
func (m *MemoryStore) AppendAuditTx(ctx context.Context, _ *sql.Tx, e *AuditEvent) error {
	return m.AppendAuditBatch(ctx, []*AuditEvent{e})
}

func (m *MemoryStore) AppendSecurityTx(ctx context.Context, _ *sql.Tx, e *SecurityEvent) error {
	return m.AppendSecurityBatch(ctx, []*SecurityEvent{e})
}

func (m *MemoryStore) QueryAudit(ctx context.Context, q AuditQuery) ([]*AuditEvent, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*AuditEvent
	for _, e := range m.audits {
		if q.ActorID != "" && e.ActorID != q.ActorID {
			continue
		}
		if q.ResourceType != "" && e.ResourceType != q.ResourceType {
			continue
		}
		if q.ResourceID != "" && e.ResourceID != q.ResourceID {
			continue
		}
		if !q.From.IsZero() && e.CreatedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.CreatedAt.After(q.To) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := 0
	if q.Cursor != "" {
		for i, e := range matched {
			if e.ID == q.Cursor {
				start = i + 1
				break
			}
		}
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if start >= len(matched) {
		return nil, "", nil
	}
	page := matched[start:]
	next := ""
	if len(page) > limit {
		page = page[:limit]
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

func (m *MemoryStore) QuerySecurity(ctx context.Context, q SecurityQuery) ([]*SecurityEvent, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*SecurityEvent
	for _, e := range m.securities {
		if q.ActorID != "" && e.ActorID != q.ActorID {
			continue
		}
		if q.Kind != "" && e.Kind != q.Kind {
			continue
		}
		if !q.From.IsZero() && e.CreatedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.CreatedAt.After(q.To) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := 0
	if q.Cursor != "" {
		for i, e := range matched {
			if e.ID == q.Cursor {
				start = i + 1
				break
			}
		}
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if start >= len(matched) {
		return nil, "", nil
	}
	page := matched[start:]
	next := ""
	if len(page) > limit {
		page = page[:limit]
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ TxAppender = (*MemoryStore)(nil)
)
