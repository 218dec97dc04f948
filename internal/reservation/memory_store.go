package reservation

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/modubeauty/modu/internal/syncutil"
)

// MemoryStore is an in-memory Store for development and tests. Slot
// admission serializes on a sharded keyed mutex per (shop, day), mirroring
// the advisory lock the Postgres store takes.
type MemoryStore struct {
	mu           sync.RWMutex
	reservations map[string]*Reservation
	logs         []*StatusLog
	slots        *syncutil.ShardedMutex
}

// NewMemoryStore creates an empty in-memory reservation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reservations: make(map[string]*Reservation),
		slots:        &syncutil.ShardedMutex{},
	}
}

func (m *MemoryStore) CreateLocked(ctx context.Context, res *Reservation, capacity int, fn func(ctx context.Context, tx *sql.Tx) error) error {
	unlock := m.slots.Lock(dayBucket(res.ShopID, res.Datetime))
	defer unlock()

	m.mu.Lock()
	overlapping := 0
	for _, other := range m.reservations {
		if other.ShopID != res.ShopID {
			continue
		}
		if other.Status != StatusConfirmed && other.Status != StatusInProgress {
			continue
		}
		if other.Overlaps(res.Datetime, res.EndTime) {
			overlapping++
		}
	}
	m.mu.Unlock()
	if overlapping >= capacity {
		return ErrSlotConflict
	}

	if fn != nil {
		if err := fn(ctx, nil); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *res
	cp.ServiceIDs = append([]string(nil), res.ServiceIDs...)
	m.reservations[res.ID] = &cp
	m.logs = append(m.logs, &StatusLog{
		ID:            res.ID + "-log0",
		ReservationID: res.ID,
		To:            StatusRequested,
		Actor:         res.CustomerID,
		At:            res.CreatedAt,
	})
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *res
	cp.ServiceIDs = append([]string(nil), res.ServiceIDs...)
	return &cp, nil
}

func (m *MemoryStore) UpdateStatusLogged(ctx context.Context, res *Reservation, log *StatusLog, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if fn != nil {
		if err := fn(ctx, nil); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reservations[res.ID]; !ok {
		return ErrNotFound
	}
	cp := *res
	cp.ServiceIDs = append([]string(nil), res.ServiceIDs...)
	m.reservations[res.ID] = &cp
	lcp := *log
	m.logs = append(m.logs, &lcp)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, q ListQuery) ([]*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*Reservation
	for _, res := range m.reservations {
		if res.ShopID != q.ShopID {
			continue
		}
		if q.CustomerID != "" && res.CustomerID != q.CustomerID {
			continue
		}
		if q.Status != "" && res.Status != q.Status {
			continue
		}
		if !q.From.IsZero() && res.Datetime.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && res.Datetime.After(q.To) {
			continue
		}
		cp := *res
		cp.ServiceIDs = append([]string(nil), res.ServiceIDs...)
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Datetime.Before(matched[j].Datetime) })

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (m *MemoryStore) StatusLogs(ctx context.Context, reservationID string) ([]*StatusLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*StatusLog
	for _, l := range m.logs {
		if l.ReservationID == reservationID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListStaleRequested(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error) {
	return m.listByStatusBefore(StatusRequested, func(r *Reservation) bool {
		return r.CreatedAt.Before(cutoff)
	}, limit)
}

func (m *MemoryStore) ListOverdueConfirmed(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error) {
	return m.listByStatusBefore(StatusConfirmed, func(r *Reservation) bool {
		return r.Datetime.Before(cutoff)
	}, limit)
}

func (m *MemoryStore) listByStatusBefore(status Status, match func(*Reservation) bool, limit int) ([]*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Reservation
	for _, res := range m.reservations {
		if res.Status != status || !match(res) {
			continue
		}
		cp := *res
		cp.ServiceIDs = append([]string(nil), res.ServiceIDs...)
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
