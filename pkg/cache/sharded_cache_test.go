package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateOnce(t *testing.T) {
	m := NewShardedMap[*int]()
	var calls atomic.Int32

	const workers = 64
	results := make([]*int, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, _, err := m.GetOrCreate("k", func() (*int, error) {
				calls.Add(1)
				n := 42
				return &n, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestGetOrCreateFailureStoresNothing(t *testing.T) {
	m := NewShardedMap[string]()
	boom := errors.New("boom")

	_, created, err := m.GetOrCreate("k", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, created)
	_, ok := m.Get("k")
	assert.False(t, ok)

	v, created, err := m.GetOrCreate("k", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ok", v)
}

func TestLenStats(t *testing.T) {
	m := NewShardedMap[int]()
	for i := 0; i < 100; i++ {
		_, _, err := m.GetOrCreate(fmt.Sprintf("key-%d", i), func() (int, error) { return i, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 100, m.Len())

	stats := m.Stats()
	assert.Equal(t, 100, stats.TotalItems)
	sum := 0
	for _, c := range stats.ShardCounts {
		sum += c
	}
	assert.Equal(t, 100, sum)
}
