package shop

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	shops    map[string]*Shop
	services map[string]*Service
}

// NewMemoryStore creates an empty in-memory shop store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shops:    make(map[string]*Shop),
		services: make(map[string]*Service),
	}
}

func (m *MemoryStore) CreateShop(ctx context.Context, s *Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.shops[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetShop(ctx context.Context, id string) (*Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shops[id]
	if !ok || s.DeletedAt != nil {
		return nil, ErrShopNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpdateShop(ctx context.Context, s *Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shops[s.ID]; !ok {
		return ErrShopNotFound
	}
	cp := *s
	m.shops[s.ID] = &cp
	return nil
}

func (m *MemoryStore) ListShops(ctx context.Context, bookableOnly bool, limit, offset int) ([]*Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*Shop
	for _, s := range m.shops {
		if s.DeletedAt != nil {
			continue
		}
		if bookableOnly && !s.Bookable() {
			continue
		}
		cp := *s
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) CreateService(ctx context.Context, svc *Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *svc
	m.services[svc.ID] = &cp
	return nil
}

func (m *MemoryStore) GetService(ctx context.Context, id string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[id]
	if !ok || svc.DeletedAt != nil {
		return nil, ErrServiceNotFound
	}
	cp := *svc
	return &cp, nil
}

func (m *MemoryStore) GetServices(ctx context.Context, ids []string) ([]*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Service
	for _, id := range ids {
		if svc, ok := m.services[id]; ok && svc.DeletedAt == nil {
			cp := *svc
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) UpdateService(ctx context.Context, svc *Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[svc.ID]; !ok {
		return ErrServiceNotFound
	}
	cp := *svc
	m.services[svc.ID] = &cp
	return nil
}

func (m *MemoryStore) ListServices(ctx context.Context, shopID string) ([]*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Service
	for _, svc := range m.services {
		if svc.DeletedAt == nil && svc.ShopID == shopID {
			cp := *svc
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
