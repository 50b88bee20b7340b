package common

import (
	"sync"
	"time"
)

// NonceSource hands out strictly increasing millisecond nonces.
// Two actions signed within the same millisecond still get distinct nonces.
type NonceSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewNonceSource(now func() time.Time) *NonceSource {
	if now == nil {
		now = time.Now
	}
	return &NonceSource{now: now}
}

// Next returns a nonce greater than every previous one.
func (n *NonceSource) Next() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.now().UnixMilli()
	if ms <= n.last {
		ms = n.last + 1
	}
	n.last = ms
	return uint64(ms)
}
