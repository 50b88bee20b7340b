package events

import (
	"sync"
	"time"
)

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan Message
	now  func() time.Time
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Message), now: time.Now}
}

// Subscribe registers a listener for an event and returns the channel and an unsubscribe function.
// EventAny receives every topic.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, buffer)
	b.subs[e] = append(b.subs[e], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[e]
			for i, c := range subs {
				if c == ch {
					close(c)
					b.subs[e] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		})
	}

	return ch, unsub
}

// Publish fans the message out to topic and wildcard subscribers without blocking.
func (b *Bus) Publish(e Event, wallet string, data any) {
	if b == nil {
		return
	}
	msg := Message{Type: e, Wallet: wallet, Data: data, Time: b.now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, topic := range []Event{e, EventAny} {
		for _, ch := range b.subs[topic] {
			select {
			case ch <- msg:
			default:
				// drop if subscriber is slow; keep broker non-blocking
			}
		}
	}
}

// Subscribers returns the number of live subscriptions across all topics.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}
