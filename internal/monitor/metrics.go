package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Operation names recorded by the order engine.
const (
	OpPlaceLimit     = "place_limit"
	OpPlaceMarket    = "place_market"
	OpCancel         = "cancel"
	OpClosePosition  = "close_position"
	OpPositions      = "positions"
	OpOpenOrders     = "open_orders"
	OpMarketInfo     = "market_info"
	OpUpdateLeverage = "update_leverage"
)

// SessionStats is the registry view exposed on the metrics endpoint.
type SessionStats struct {
	Sessions     int    `json:"sessions"`
	Created      uint64 `json:"created"`
	InitFailures uint64 `json:"init_failures"`
	ShardCounts  []int  `json:"shard_counts"`
}

// Metrics tracks gateway throughput and venue latency.
type Metrics struct {
	mu sync.RWMutex

	// Latency histograms
	VenueLatency *LatencyHistogram
	APILatency   *LatencyHistogram

	// Counters
	ordersPlaced    uint64
	ordersCancelled uint64
	positionsClosed uint64
	rejections      uint64
	timeouts        uint64
	errorsCount     uint64

	perOp map[string]*opCounter

	sessionStats func() SessionStats
	started      time.Time
}

type opCounter struct {
	calls  uint64
	errors uint64
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next sample.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		VenueLatency: NewLatencyHistogram(1000),
		APILatency:   NewLatencyHistogram(1000),
		perOp:        make(map[string]*opCounter),
		started:      time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

func (m *Metrics) IncrementPlaced()    { atomic.AddUint64(&m.ordersPlaced, 1) }
func (m *Metrics) IncrementCancelled() { atomic.AddUint64(&m.ordersCancelled, 1) }
func (m *Metrics) IncrementClosed()    { atomic.AddUint64(&m.positionsClosed, 1) }
func (m *Metrics) IncrementRejected()  { atomic.AddUint64(&m.rejections, 1) }
func (m *Metrics) IncrementTimeouts()  { atomic.AddUint64(&m.timeouts, 1) }
func (m *Metrics) IncrementErrors()    { atomic.AddUint64(&m.errorsCount, 1) }

// ObserveOp records one venue round trip for op.
func (m *Metrics) ObserveOp(op string, elapsed time.Duration, failed bool) {
	m.VenueLatency.RecordDuration(elapsed)

	m.mu.RLock()
	c, ok := m.perOp[op]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if c, ok = m.perOp[op]; !ok {
			c = &opCounter{}
			m.perOp[op] = c
		}
		m.mu.Unlock()
	}
	atomic.AddUint64(&c.calls, 1)
	if failed {
		atomic.AddUint64(&c.errors, 1)
	}
}

// SetSessionStatsFunc wires the session registry into snapshots.
func (m *Metrics) SetSessionStatsFunc(fn func() SessionStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionStats = fn
}

// OpStats counts calls per engine operation.
type OpStats struct {
	Calls  uint64 `json:"calls"`
	Errors uint64 `json:"errors"`
}

// Snapshot is a point-in-time view of the gateway.
type Snapshot struct {
	VenueLatency    LatencyStats       `json:"venue_latency"`
	APILatency      LatencyStats       `json:"api_latency"`
	OrdersPlaced    uint64             `json:"orders_placed"`
	OrdersCancelled uint64             `json:"orders_cancelled"`
	PositionsClosed uint64             `json:"positions_closed"`
	Rejections      uint64             `json:"rejections"`
	Timeouts        uint64             `json:"timeouts"`
	ErrorsCount     uint64             `json:"errors_count"`
	Operations      map[string]OpStats `json:"operations"`
	Sessions        SessionStats       `json:"sessions"`
	GoroutineCount  int                `json:"goroutine_count"`
	HeapAlloc       uint64             `json:"heap_alloc_bytes"`
	UptimeSeconds   float64            `json:"uptime_seconds"`
	Timestamp       time.Time          `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *Metrics) GetSnapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	ops := make(map[string]OpStats, len(m.perOp))
	for name, c := range m.perOp {
		ops[name] = OpStats{Calls: atomic.LoadUint64(&c.calls), Errors: atomic.LoadUint64(&c.errors)}
	}
	statsFn := m.sessionStats
	m.mu.RUnlock()

	var sessions SessionStats
	if statsFn != nil {
		sessions = statsFn()
	}

	return Snapshot{
		VenueLatency:    m.VenueLatency.Stats(),
		APILatency:      m.APILatency.Stats(),
		OrdersPlaced:    atomic.LoadUint64(&m.ordersPlaced),
		OrdersCancelled: atomic.LoadUint64(&m.ordersCancelled),
		PositionsClosed: atomic.LoadUint64(&m.positionsClosed),
		Rejections:      atomic.LoadUint64(&m.rejections),
		Timeouts:        atomic.LoadUint64(&m.timeouts),
		ErrorsCount:     atomic.LoadUint64(&m.errorsCount),
		Operations:      ops,
		Sessions:        sessions,
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		UptimeSeconds:   time.Since(m.started).Seconds(),
		Timestamp:       time.Now(),
	}
}
