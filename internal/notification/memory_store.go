package notification

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory outbox Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[string]*Notification
	dedupe map[string]time.Time // userId|templateId|correlationId -> enqueued at
}

// NewMemoryStore creates an empty in-memory outbox store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]*Notification),
		dedupe: make(map[string]time.Time),
	}
}

func dedupeKey(n *Notification) string {
	return n.UserID + "|" + n.TemplateID + "|" + n.CorrelationID
}

func (m *MemoryStore) Insert(ctx context.Context, n *Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dedupeKey(n)
	if at, ok := m.dedupe[key]; ok && n.CreatedAt.Sub(at) < dedupeWindow {
		return false, nil
	}
	cp := *n
	m.rows[n.ID] = &cp
	m.dedupe[key] = n.CreatedAt
	return true, nil
}

func (m *MemoryStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Notification
	for _, n := range m.rows {
		if n.Status == StatusPending && !n.NextAttemptAt.After(now) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[n.ID]; !ok {
		return ErrNotFound
	}
	cp := *n
	m.rows[n.ID] = &cp
	return nil
}

// Get returns one row. Tests use it to inspect outcomes.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

// All returns every row, oldest first. Tests use it to inspect outcomes.
func (m *MemoryStore) All() []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Notification, 0, len(m.rows))
	for _, n := range m.rows {
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var _ Store = (*MemoryStore)(nil)

// MemoryTokenStore is an in-memory TokenStore for development and tests.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens []*PushToken
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Upsert(ctx context.Context, t *PushToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.tokens {
		if existing.UserID == t.UserID && existing.DeviceID == t.DeviceID {
			cp := *t
			cp.CreatedAt = existing.CreatedAt
			m.tokens[i] = &cp
			return nil
		}
	}
	cp := *t
	m.tokens = append(m.tokens, &cp)
	return nil
}

func (m *MemoryTokenStore) ListActive(ctx context.Context, userID string) ([]*PushToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PushToken
	for _, t := range m.tokens {
		if t.UserID == userID && t.Active {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryTokenStore) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserID == userID && t.DeviceID == deviceID {
			t.Active = false
		}
	}
	return nil
}

func (m *MemoryTokenStore) DeactivateToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == token {
			t.Active = false
		}
	}
	return nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)
