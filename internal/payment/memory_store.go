package payment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	payments      map[string]*Payment
	byCorrelation map[string]string // correlationID -> payment ID
	processed     map[string]time.Time
}

// NewMemoryStore creates an empty in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:      make(map[string]*Payment),
		byCorrelation: make(map[string]string),
		processed:     make(map[string]time.Time),
	}
}

func (m *MemoryStore) Create(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	m.byCorrelation[p.CorrelationID] = p.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetByCorrelation(ctx context.Context, correlationID string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCorrelation[correlationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.payments[id]
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Payment
	for _, p := range m.payments {
		if p.Status != StatusPending || !p.CreatedAt.Before(cutoff) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListSettledByShop(ctx context.Context, shopID string, from, to time.Time) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Payment
	for _, p := range m.payments {
		if p.ShopID != shopID || p.PaidAt == nil {
			continue
		}
		if !p.Status.Settled() && p.Status != StatusRefunded && p.Status != StatusDisputed {
			continue
		}
		if p.PaidAt.Before(from) || p.PaidAt.After(to) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(*out[j].PaidAt) })
	return out, nil
}

func (m *MemoryStore) MarkEventProcessed(ctx context.Context, gatewayTxID, event string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := gatewayTxID + "|" + event
	if _, ok := m.processed[key]; ok {
		return false, nil
	}
	m.processed[key] = at
	return true, nil
}

// UnmarkEvent clears the processed marker after a failed delivery so the
// gateway's redelivery is not treated as a duplicate.
func (m *MemoryStore) UnmarkEvent(ctx context.Context, gatewayTxID, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processed, gatewayTxID+"|"+event)
	return nil
}

var _ Store = (*MemoryStore)(nil)
