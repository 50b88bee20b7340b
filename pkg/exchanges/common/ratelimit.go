package common

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// WeightLimiter enforces a per-minute request weight budget against a venue.
type WeightLimiter struct {
	limiter   *rate.Limiter
	perMinute int
	log       *logrus.Entry

	mu       sync.Mutex
	lastWarn time.Time
}

// NewWeightLimiter allows perMinute weight per minute with a full-minute burst.
// perMinute <= 0 disables limiting.
func NewWeightLimiter(perMinute int, log *logrus.Entry) *WeightLimiter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if perMinute <= 0 {
		return &WeightLimiter{limiter: rate.NewLimiter(rate.Inf, 0), log: log}
	}
	return &WeightLimiter{
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		perMinute: perMinute,
		log:       log,
	}
}

// Wait blocks until weight is available or ctx is done.
func (w *WeightLimiter) Wait(ctx context.Context, weight int) error {
	if w.perMinute <= 0 {
		return nil
	}
	if weight > w.perMinute {
		weight = w.perMinute
	}
	if err := w.limiter.WaitN(ctx, weight); err != nil {
		return err
	}
	w.warnIfHot()
	return nil
}

// Usage returns current usage information.
func (w *WeightLimiter) Usage() (used int, limit int, percentage float64) {
	if w.perMinute <= 0 {
		return 0, 0, 0
	}
	used = w.perMinute - int(w.limiter.Tokens())
	if used < 0 {
		used = 0
	}
	return used, w.perMinute, float64(used) / float64(w.perMinute) * 100
}

func (w *WeightLimiter) warnIfHot() {
	used, limit, pct := w.Usage()
	if pct < 80 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Since(w.lastWarn) < 10*time.Second {
		return
	}
	w.lastWarn = time.Now()

	entry := w.log.WithFields(logrus.Fields{"used": used, "limit": limit, "pct": pct})
	if pct >= 95 {
		entry.Warn("venue weight budget critical")
	} else {
		entry.Info("venue weight budget high")
	}
}
