package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesTopicAndWildcard(t *testing.T) {
	b := NewBus()
	placed, unsubPlaced := b.Subscribe(EventOrderPlaced, 1)
	defer unsubPlaced()
	all, unsubAll := b.Subscribe(EventAny, 4)
	defer unsubAll()

	b.Publish(EventOrderPlaced, "0xabc", "payload")
	b.Publish(EventOrderCancelled, "0xabc", nil)

	msg := <-placed
	assert.Equal(t, EventOrderPlaced, msg.Type)
	assert.Equal(t, "0xabc", msg.Wallet)
	assert.Equal(t, "payload", msg.Data)
	assert.False(t, msg.Time.IsZero())

	require.Len(t, all, 2)
	assert.Equal(t, EventOrderPlaced, (<-all).Type)
	assert.Equal(t, EventOrderCancelled, (<-all).Type)
	assert.Empty(t, placed)
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventOrderPlaced, 1)
	defer unsub()

	b.Publish(EventOrderPlaced, "w", 1)
	b.Publish(EventOrderPlaced, "w", 2)

	assert.Equal(t, 1, (<-ch).Data)
	assert.Empty(t, ch)
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventAny, 1)
	assert.Equal(t, 1, b.Subscribers())

	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers())

	var nilBus *Bus
	assert.NotPanics(t, func() { nilBus.Publish(EventOrderPlaced, "w", nil) })
}
