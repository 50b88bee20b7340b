// Package order derives, submits and normalizes orders for a wallet session.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"perp-gateway/internal/events"
	"perp-gateway/internal/monitor"
	"perp-gateway/internal/session"
	exchange "perp-gateway/pkg/exchanges/common"
)

const (
	MinLeverage = 1
	MaxLeverage = 100
)

// Options configures an Engine. Timeout is required.
type Options struct {
	Timeout time.Duration
	Bus     *events.Bus
	Metrics *monitor.Metrics
	Logger  *logrus.Entry
}

// Engine runs order operations against a session's venue clients.
// It never retries; every venue call is bounded by Options.Timeout.
type Engine struct {
	market  exchange.MarketData
	timeout time.Duration
	bus     *events.Bus
	metrics *monitor.Metrics
	log     *logrus.Entry
}

// OrderEvent is published on the bus for every successful mutation.
type OrderEvent struct {
	Order     Order            `json:"order"`
	MarkPrice *decimal.Decimal `json:"mark_price,omitempty"`
}

// LeverageEvent is published after a leverage change.
type LeverageEvent struct {
	Asset    string `json:"asset"`
	Leverage int    `json:"leverage"`
	Cross    bool   `json:"cross"`
}

// NewEngine creates an engine. market serves GetMarketInfo.
func NewEngine(market exchange.MarketData, opts Options) (*Engine, error) {
	if market == nil {
		return nil, errors.New("order engine: market data source is required")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("order engine: timeout must be positive")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		market:  market,
		timeout: opts.Timeout,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		log:     log,
	}, nil
}

// PlaceLimit submits a good-till-cancelled limit order.
func (e *Engine) PlaceLimit(ctx context.Context, s *session.Session, asset string, isBuy bool, size, price decimal.Decimal) (Order, error) {
	if err := validateOrder(asset, size); err != nil {
		return Order{}, err
	}
	if !price.IsPositive() {
		return Order{}, fmt.Errorf("%w: price must be positive", ErrOrderSubmit)
	}

	req := exchange.OrderRequest{
		Asset: asset,
		IsBuy: isBuy,
		Size:  size,
		Price: price,
		Type:  exchange.LimitOrder{TIF: exchange.TIFGTC},
	}
	res, err := e.submit(ctx, monitor.OpPlaceLimit, s, req)
	if err != nil {
		return Order{}, err
	}

	o := newOrder(req, res, StatusOpen)
	e.metricsPlaced()
	e.publish(events.EventOrderPlaced, s, OrderEvent{Order: o})
	e.log.WithFields(logrus.Fields{
		"wallet": s.Wallet.Hex(), "asset": asset, "oid": o.OrderID,
		"is_buy": isBuy, "size": size.String(), "price": price.String(),
	}).Info("limit order placed")
	return o, nil
}

// PlaceMarket submits a market order. The mark price is looked up for the
// asset check and the event only; the order itself carries price zero.
func (e *Engine) PlaceMarket(ctx context.Context, s *session.Session, asset string, isBuy bool, size decimal.Decimal) (Order, error) {
	if err := validateOrder(asset, size); err != nil {
		return Order{}, err
	}

	meta, err := e.lookup(ctx, monitor.OpPlaceMarket, s.Info, asset)
	if err != nil {
		return Order{}, err
	}
	mark := ParseDecimal(meta.MarkPrice)

	req := exchange.OrderRequest{
		Asset: asset,
		IsBuy: isBuy,
		Size:  size,
		Price: decimal.Zero,
		Type:  exchange.MarketOrder{},
	}
	res, err := e.submit(ctx, monitor.OpPlaceMarket, s, req)
	if err != nil {
		return Order{}, err
	}

	o := newOrder(req, res, StatusOpen)
	e.metricsPlaced()
	e.publish(events.EventOrderPlaced, s, OrderEvent{Order: o, MarkPrice: &mark})
	e.log.WithFields(logrus.Fields{
		"wallet": s.Wallet.Hex(), "asset": asset, "oid": o.OrderID,
		"is_buy": isBuy, "size": size.String(), "mark_price": mark.String(),
	}).Info("market order placed")
	return o, nil
}

// Cancel cancels a resting order. Missing orders surface as ErrOrderNotFound.
func (e *Engine) Cancel(ctx context.Context, s *session.Session, asset, orderID string) (Order, error) {
	if strings.TrimSpace(asset) == "" || strings.TrimSpace(orderID) == "" {
		return Order{}, fmt.Errorf("%w: asset and order id are required", ErrInvalidRequest)
	}
	err := e.call(ctx, monitor.OpCancel, s.Wallet.Hex(), func(ctx context.Context) error {
		return s.Exchange.Cancel(ctx, asset, orderID)
	})
	if err != nil {
		return Order{}, err
	}

	o := Order{Asset: asset, OrderID: orderID, Status: StatusCancelled}
	e.metricsDo(func(m *monitor.Metrics) { m.IncrementCancelled() })
	e.publish(events.EventOrderCancelled, s, OrderEvent{Order: o})
	e.log.WithFields(logrus.Fields{"wallet": s.Wallet.Hex(), "asset": asset, "oid": orderID}).Info("order cancelled")
	return o, nil
}

// ClosePosition flattens the wallet's position in asset with a reduce-only
// market order in the opposite direction: shorts buy, longs sell.
func (e *Engine) ClosePosition(ctx context.Context, s *session.Session, asset string) (Order, error) {
	state, err := e.userState(ctx, monitor.OpClosePosition, s)
	if err != nil {
		return Order{}, err
	}

	var size decimal.Decimal
	for _, p := range state.AssetPositions {
		if p.Coin == asset {
			size = ParseDecimal(p.Szi)
			break
		}
	}
	if size.IsZero() {
		return Order{}, fmt.Errorf("%w: %s", ErrNoPosition, asset)
	}

	req := exchange.OrderRequest{
		Asset:      asset,
		IsBuy:      size.IsNegative(),
		Size:       size.Abs(),
		Price:      decimal.Zero,
		Type:       exchange.MarketOrder{},
		ReduceOnly: true,
	}
	res, err := e.submit(ctx, monitor.OpClosePosition, s, req)
	if err != nil {
		return Order{}, err
	}

	o := newOrder(req, res, StatusClosing)
	e.metricsDo(func(m *monitor.Metrics) { m.IncrementClosed() })
	e.publish(events.EventPositionClosing, s, OrderEvent{Order: o})
	e.log.WithFields(logrus.Fields{
		"wallet": s.Wallet.Hex(), "asset": asset, "position": size.String(), "is_buy": req.IsBuy,
	}).Info("position closing")
	return o, nil
}

// GetPositions returns the wallet's non-zero positions. Never cached.
func (e *Engine) GetPositions(ctx context.Context, s *session.Session) ([]Position, error) {
	state, err := e.userState(ctx, monitor.OpPositions, s)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(state.AssetPositions))
	for _, p := range state.AssetPositions {
		out = append(out, positionFromRaw(p))
	}
	return out, nil
}

// GetOpenOrders returns the wallet's resting orders.
func (e *Engine) GetOpenOrders(ctx context.Context, s *session.Session) ([]Order, error) {
	state, err := e.userState(ctx, monitor.OpOpenOrders, s)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(state.Orders))
	for _, o := range state.Orders {
		out = append(out, orderFromRaw(o))
	}
	return out, nil
}

// GetMarketInfo returns the market snapshot for asset.
func (e *Engine) GetMarketInfo(ctx context.Context, asset string) (MarketInfo, error) {
	meta, err := e.lookup(ctx, monitor.OpMarketInfo, e.market, asset)
	if err != nil {
		return MarketInfo{}, err
	}
	return marketInfoFromMeta(meta), nil
}

// UpdateLeverage sets leverage for asset, cross or isolated.
func (e *Engine) UpdateLeverage(ctx context.Context, s *session.Session, asset string, leverage int, cross bool) error {
	if leverage < MinLeverage || leverage > MaxLeverage {
		return fmt.Errorf("%w: leverage must be between %d and %d", ErrOrderSubmit, MinLeverage, MaxLeverage)
	}
	meta, err := e.lookup(ctx, monitor.OpUpdateLeverage, s.Info, asset)
	if err != nil {
		return err
	}
	if meta.MaxLeverage > 0 && leverage > meta.MaxLeverage {
		return fmt.Errorf("%w: %s allows at most %dx", ErrOrderSubmit, asset, meta.MaxLeverage)
	}

	err = e.call(ctx, monitor.OpUpdateLeverage, s.Wallet.Hex(), func(ctx context.Context) error {
		return s.Exchange.UpdateLeverage(ctx, asset, leverage, cross)
	})
	if err != nil {
		return err
	}
	e.publish(events.EventLeverageUpdated, s, LeverageEvent{Asset: asset, Leverage: leverage, Cross: cross})
	e.log.WithFields(logrus.Fields{"wallet": s.Wallet.Hex(), "asset": asset, "leverage": leverage, "cross": cross}).Info("leverage updated")
	return nil
}

func validateOrder(asset string, size decimal.Decimal) error {
	if strings.TrimSpace(asset) == "" {
		return fmt.Errorf("%w: asset is required", ErrOrderSubmit)
	}
	if !size.IsPositive() {
		return fmt.Errorf("%w: size must be positive", ErrOrderSubmit)
	}
	return nil
}

func newOrder(req exchange.OrderRequest, res exchange.SubmitResult, status Status) Order {
	return Order{
		Asset:    req.Asset,
		OrderID:  res.OrderID,
		Size:     req.Size,
		Price:    req.Price,
		IsBuy:    req.IsBuy,
		Status:   status,
		Type:     exchange.OrderTypeName(req.Type),
		Filled:   res.Filled,
		AvgPrice: res.AvgPrice,
	}
}

func (e *Engine) submit(ctx context.Context, op string, s *session.Session, req exchange.OrderRequest) (exchange.SubmitResult, error) {
	var res exchange.SubmitResult
	err := e.call(ctx, op, s.Wallet.Hex(), func(ctx context.Context) error {
		var err error
		res, err = s.Exchange.Submit(ctx, req)
		return err
	})
	if err != nil {
		// call only returns ErrOrderSubmit for venue rejections.
		if errors.Is(err, ErrOrderSubmit) {
			e.publish(events.EventOrderRejected, s, OrderEvent{Order: newOrder(req, res, StatusOpen)})
		}
		return exchange.SubmitResult{}, err
	}
	return res, nil
}

func (e *Engine) userState(ctx context.Context, op string, s *session.Session) (exchange.UserState, error) {
	var state exchange.UserState
	err := e.call(ctx, op, s.Wallet.Hex(), func(ctx context.Context) error {
		var err error
		state, err = s.Info.UserState(ctx, s.Wallet.Hex())
		return err
	})
	return state, err
}

func (e *Engine) lookup(ctx context.Context, op string, md exchange.MarketData, asset string) (exchange.AssetMeta, error) {
	var universe []exchange.AssetMeta
	err := e.call(ctx, op, "", func(ctx context.Context) error {
		var err error
		universe, err = md.Meta(ctx)
		return err
	})
	if err != nil {
		return exchange.AssetMeta{}, err
	}
	meta, ok := findAsset(universe, asset)
	if !ok {
		return exchange.AssetMeta{}, fmt.Errorf("%w: %s", ErrAssetNotFound, asset)
	}
	return meta, nil
}

// call runs one venue round trip under the engine timeout and maps its error.
func (e *Engine) call(ctx context.Context, op, wallet string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	e.metricsDo(func(m *monitor.Metrics) { m.ObserveOp(op, time.Since(start), err != nil) })
	if err == nil {
		return nil
	}
	return e.classify(cctx, op, wallet, err)
}

func (e *Engine) classify(ctx context.Context, op, wallet string, err error) error {
	log := e.log.WithFields(logrus.Fields{"op": op, "wallet": wallet})
	var rej *exchange.RejectError

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.metricsDo(func(m *monitor.Metrics) { m.IncrementTimeouts() })
		log.WithField("timeout", e.timeout).Warn("venue call timed out")
		return fmt.Errorf("%w: %s exceeded %s", ErrUpstreamTimeout, op, e.timeout)
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &rej):
		log.WithField("reason", rej.Reason).Warn("venue rejected request")
		if !submitsOrder(op) {
			return fmt.Errorf("%w: %s", ErrVenueRejected, rej.Reason)
		}
		e.metricsDo(func(m *monitor.Metrics) { m.IncrementRejected() })
		return fmt.Errorf("%w: %s", ErrOrderSubmit, rej.Reason)
	case errors.Is(err, exchange.ErrOrderNotFound):
		return ErrOrderNotFound
	case errors.Is(err, exchange.ErrUnknownAsset):
		return ErrAssetNotFound
	default:
		e.metricsDo(func(m *monitor.Metrics) { m.IncrementErrors() })
		log.WithError(err).Error("venue call failed")
		return fmt.Errorf("%w: %s failed", ErrUpstream, op)
	}
}

func submitsOrder(op string) bool {
	switch op {
	case monitor.OpPlaceLimit, monitor.OpPlaceMarket, monitor.OpClosePosition:
		return true
	}
	return false
}

func (e *Engine) publish(topic events.Event, s *session.Session, data any) {
	e.bus.Publish(topic, s.Wallet.Hex(), data)
}

func (e *Engine) metricsPlaced() {
	e.metricsDo(func(m *monitor.Metrics) { m.IncrementPlaced() })
}

func (e *Engine) metricsDo(fn func(*monitor.Metrics)) {
	if e.metrics != nil {
		fn(e.metrics)
	}
}
