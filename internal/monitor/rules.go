package monitor

import (
	"sync"
	"time"
)

// RejectionRule fires when one wallet collects Threshold rejections inside Window.
// It fires once per burst and re-arms when the window drains.
type RejectionRule struct {
	Threshold int
	Window    time.Duration

	mu     sync.Mutex
	seen   map[string][]time.Time
	firing map[string]bool
}

func NewRejectionRule(threshold int, window time.Duration) *RejectionRule {
	return &RejectionRule{
		Threshold: threshold,
		Window:    window,
		seen:      make(map[string][]time.Time),
		firing:    make(map[string]bool),
	}
}

// Observe records a rejection for wallet at t and reports whether the rule just fired.
func (r *RejectionRule) Observe(wallet string, t time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := t.Add(-r.Window)
	kept := r.seen[wallet][:0]
	for _, at := range r.seen[wallet] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, t)
	r.seen[wallet] = kept

	if len(kept) < r.Threshold {
		r.firing[wallet] = false
		return false
	}
	if r.firing[wallet] {
		return false
	}
	r.firing[wallet] = true
	return true
}
