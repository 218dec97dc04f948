package referral

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	referrals []*Referral
}

// NewMemoryStore creates an empty in-memory referral store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(ctx context.Context, r *Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.referrals = append(m.referrals, &cp)
	return nil
}

func (m *MemoryStore) GetByPayment(ctx context.Context, paymentID string) (*Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.referrals {
		if r.PaymentID == paymentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CountByReferrer(ctx context.Context, referrerUserID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range m.referrals {
		if r.ReferrerUserID == referrerUserID {
			seen[r.ReferredUserID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (m *MemoryStore) TotalCommission(ctx context.Context, referrerUserID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, r := range m.referrals {
		if r.ReferrerUserID == referrerUserID {
			sum += r.Commission
		}
	}
	return sum, nil
}

func (m *MemoryStore) ListByReferrer(ctx context.Context, referrerUserID string, limit int) ([]*Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Referral
	for i := len(m.referrals) - 1; i >= 0; i-- {
		if m.referrals[i].ReferrerUserID != referrerUserID {
			continue
		}
		cp := *m.referrals[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
