package points

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	holds   map[string]*Hold // keyed by correlation ID
}

// NewMemoryStore creates an empty in-memory point store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holds: make(map[string]*Hold)}
}

func (m *MemoryStore) AppendEntry(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryStore) GetEntry(ctx context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (m *MemoryStore) EntriesByPayment(ctx context.Context, paymentID string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Entry
	for _, e := range m.entries {
		if e.PaymentID == paymentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Balance(ctx context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (m *MemoryStore) Summary(ctx context.Context, userID string, now time.Time) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := &Summary{}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, e := range m.entries {
		if e.UserID != userID {
			continue
		}
		s.Balance += e.Amount
		if e.Amount > 0 && e.Type != TypeRefunded {
			s.TotalEarned += e.Amount
			if !e.CreatedAt.Before(dayStart) {
				s.EarnedToday += e.Amount
			}
		}
		if e.Amount < 0 && e.Type == TypeSpent {
			s.TotalSpent += -e.Amount
		}
	}
	var held int64
	for _, h := range m.holds {
		if h.UserID == userID && h.Status == HoldActive {
			held += h.Amount
		}
	}
	s.Available = s.Balance - held
	return s, nil
}

func (m *MemoryStore) History(ctx context.Context, q HistoryQuery) ([]*Entry, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*Entry
	for _, e := range m.entries {
		if e.UserID != q.UserID {
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

func (m *MemoryStore) ExpiringEntries(ctx context.Context, now time.Time, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	alreadyExpired := make(map[string]bool)
	for _, e := range m.entries {
		if e.ExpiredBy != "" {
			alreadyExpired[e.ExpiredBy] = true
		}
	}
	var out []*Entry
	for _, e := range m.entries {
		if e.Amount <= 0 || e.ExpiresAt == nil || e.ExpiresAt.After(now) || alreadyExpired[e.ID] {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) FindReferralEntry(ctx context.Context, paymentID string, paidAt time.Time, userID string, window time.Duration) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.UserID == userID && e.Type == TypeEarnedReferral && e.PaymentID == paymentID && paymentID != "" {
			cp := *e
			return &cp, nil
		}
	}
	for _, e := range m.entries {
		if e.UserID != userID || e.Type != TypeEarnedReferral || e.PaymentID != "" {
			continue
		}
		delta := e.CreatedAt.Sub(paidAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (m *MemoryStore) CreateHold(ctx context.Context, h *Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.holds[h.CorrelationID] = &cp
	return nil
}

func (m *MemoryStore) GetHoldByCorrelation(ctx context.Context, correlationID string) (*Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holds[correlationID]
	if !ok {
		return nil, ErrHoldNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *MemoryStore) UpdateHold(ctx context.Context, h *Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holds[h.CorrelationID]; !ok {
		return ErrHoldNotFound
	}
	cp := *h
	m.holds[h.CorrelationID] = &cp
	return nil
}

func (m *MemoryStore) ActiveHoldTotal(ctx context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, h := range m.holds {
		if h.UserID == userID && h.Status == HoldActive {
			sum += h.Amount
		}
	}
	return sum, nil
}

var _ Store = (*MemoryStore)(nil)
