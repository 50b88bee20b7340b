package monitor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"perp-gateway/internal/events"
)

// Monitor watches gateway events, logs them and raises rejection alerts.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
	Rule *RejectionRule
	Log  *logrus.Entry
}

// Start consumes the bus until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil || m.Log == nil {
		logrus.Warn("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.Subscribe(events.EventAny, 256)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				m.handle(msg)
			}
		}
	}()
}

func (m *Monitor) handle(msg events.Message) {
	m.Log.WithFields(logrus.Fields{
		"event":  msg.Type,
		"wallet": msg.Wallet,
	}).Debug("gateway event")

	if msg.Type != events.EventOrderRejected || m.Rule == nil {
		return
	}
	if m.Rule.Observe(msg.Wallet, msg.Time) {
		alert := fmt.Sprintf("wallet %s hit %d order rejections within %s", msg.Wallet, m.Rule.Threshold, m.Rule.Window)
		if err := m.Sink.Send(alert); err != nil {
			m.Log.WithError(err).Error("alert delivery failed")
		}
	}
}
