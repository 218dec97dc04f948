package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShards = 64

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

type blockEntry struct {
	until     time.Time
	expiresAt time.Time
}

type memoryShard struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
	blocks   map[string]*blockEntry
}

// MemoryStore is a sharded in-process CounterStore with a background
// janitor that evicts expired entries.
type MemoryStore struct {
	shards [memoryShards]*memoryShard
	stop   chan struct{}
	once   sync.Once
	now    func() time.Time
}

// NewMemoryStore creates a memory counter store and starts its janitor.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{stop: make(chan struct{}), now: time.Now}
	for i := range m.shards {
		m.shards[i] = &memoryShard{
			counters: make(map[string]*counterEntry),
			blocks:   make(map[string]*blockEntry),
		}
	}
	go m.janitor()
	return m
}

func (m *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%memoryShards]
}

func (m *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := m.now().UTC()
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.counters[key]
	if !ok || now.After(e.expiresAt) {
		e = &counterEntry{expiresAt: now.Add(ttl)}
		s.counters[key] = e
	}
	e.count++
	return e.count, nil
}

func (m *MemoryStore) GetBlock(ctx context.Context, key string) (time.Time, bool, error) {
	now := m.now().UTC()
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[key]
	if !ok || now.After(b.expiresAt) {
		return time.Time{}, false, nil
	}
	return b.until, true, nil
}

func (m *MemoryStore) SetBlock(ctx context.Context, key string, until time.Time, ttl time.Duration) error {
	now := m.now().UTC()
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[key] = &blockEntry{until: until, expiresAt: now.Add(ttl)}
	return nil
}

// Stop shuts down the janitor.
func (m *MemoryStore) Stop() {
	m.once.Do(func() { close(m.stop) })
}

func (m *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			now := m.now().UTC()
			for _, s := range m.shards {
				s.mu.Lock()
				for k, e := range s.counters {
					if now.After(e.expiresAt) {
						delete(s.counters, k)
					}
				}
				for k, b := range s.blocks {
					if now.After(b.expiresAt) {
						delete(s.blocks, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

var _ CounterStore = (*MemoryStore)(nil)
