// Package cache provides a sharded, insert-once map for long-lived per-key state.
package cache

import (
	"hash/fnv"
	"sync"
)

const numShards = 16

// ShardedMap spreads keys over fixed shards so unrelated keys never contend.
// Values are created at most once per key and never removed.
type ShardedMap[V any] struct {
	shards [numShards]*shard[V]
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewShardedMap creates an empty map.
func NewShardedMap[V any]() *ShardedMap[V] {
	m := &ShardedMap[V]{}
	for i := 0; i < numShards; i++ {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *ShardedMap[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%numShards]
}

// Get returns the value stored under key.
func (m *ShardedMap[V]) Get(key string) (V, bool) {
	s := m.getShard(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

// GetOrCreate returns the existing value or stores the result of create.
// create runs under the shard write lock, so concurrent callers for the same
// key observe a single invocation. The bool is true when this call created it.
// A failing create stores nothing.
func (m *ShardedMap[V]) GetOrCreate(key string, create func() (V, error)) (V, bool, error) {
	s := m.getShard(key)

	s.mu.RLock()
	if v, ok := s.items[key]; ok {
		s.mu.RUnlock()
		return v, false, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring lock
	if v, ok := s.items[key]; ok {
		return v, false, nil
	}

	v, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}
	s.items[key] = v
	return v, true, nil
}

// Len returns total items across all shards.
func (m *ShardedMap[V]) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Stats provides cache statistics.
type Stats struct {
	TotalItems  int            `json:"total_items"`
	ShardCounts [numShards]int `json:"shard_counts"`
}

// Stats returns per-shard occupancy.
func (m *ShardedMap[V]) Stats() Stats {
	var stats Stats
	for i, s := range m.shards {
		s.mu.RLock()
		stats.ShardCounts[i] = len(s.items)
		stats.TotalItems += len(s.items)
		s.mu.RUnlock()
	}
	return stats
}
