package events

import "time"

// Event enumerates topics published by the gateway.
type Event string

const (
	// EventAny subscribes to every topic.
	EventAny Event = "*"

	EventOrderPlaced     Event = "order.placed"
	EventOrderCancelled  Event = "order.cancelled"
	EventOrderRejected   Event = "order.rejected"
	EventPositionClosing Event = "position.closing"
	EventLeverageUpdated Event = "leverage.updated"
)

// Message is the payload delivered to subscribers.
type Message struct {
	Type   Event     `json:"type"`
	Wallet string    `json:"wallet"`
	Data   any       `json:"data,omitempty"`
	Time   time.Time `json:"time"`
}
