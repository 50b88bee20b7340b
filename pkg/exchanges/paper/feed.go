package paper

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	exchange "perp-gateway/pkg/exchanges/common"
)

// SyncMarks copies mark prices for every simulated market from src, filling
// resting orders the new marks cross. Assets src does not list keep their mark.
// It returns how many markets were updated.
func (v *Venue) SyncMarks(ctx context.Context, src exchange.MarketData) (int, error) {
	universe, err := src.Meta(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, m := range universe {
		mark, err := decimal.NewFromString(m.MarkPrice)
		if err != nil || !mark.IsPositive() {
			continue
		}
		if err := v.SetMarkPrice(m.Name, mark); err != nil {
			continue
		}
		updated++
	}
	return updated, nil
}

// FollowMarks runs SyncMarks every interval until ctx is done.
// Each poll is bounded by timeout.
func (v *Venue) FollowMarks(ctx context.Context, src exchange.MarketData, every, timeout time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	v.log.WithFields(logrus.Fields{"interval": every}).Info("paper marks following source venue")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, timeout)
			n, err := v.SyncMarks(pollCtx, src)
			cancel()
			if err != nil {
				v.log.WithError(err).Warn("paper mark sync failed")
				continue
			}
			v.log.WithField("markets", n).Debug("paper marks synced")
		}
	}
}
