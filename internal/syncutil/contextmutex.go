// Package syncutil provides keyed mutexes with bounded memory.
//
// The in-memory reservation store serializes slot admission per
// (shop, day) key through these locks, mirroring what the Postgres
// store's advisory lock does.
package syncutil

import (
	"context"
	"sync"
)

// ContextShardedMutex is a fixed pool of channel-based mutexes that honor
// context cancellation: a booking request waiting on a busy slot key can
// bail out when its request context dies.
type ContextShardedMutex struct {
	shards [shardCount]chan struct{}
	once   sync.Once
}

// NewContextShardedMutex creates the pool with every shard unlocked.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	m.init()
	return m
}

func (m *ContextShardedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i] = make(chan struct{}, 1)
			m.shards[i] <- struct{}{}
		}
	})
}

// LockContext acquires the key's mutex or gives up when ctx is done. On
// success the returned unlock function must be called exactly once.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	m.init()
	shard := m.shards[shardIndex(key)]

	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
