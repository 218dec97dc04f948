package syncutil

import (
	"hash/fnv"
	"sync"
)

// shardCount bounds lock memory regardless of how many keys are seen.
// Keys that hash to the same shard occasionally serialize against each
// other; for per-user balance updates that false sharing is harmless.
const shardCount = 256

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

// ShardedMutex is a fixed pool of mutexes keyed by string. The in-memory
// point ledger serializes balance updates per user through it.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the key's mutex and returns its unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := &s.shards[shardIndex(key)]
	mu.Lock()
	return mu.Unlock
}
