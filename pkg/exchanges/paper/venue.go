// Package paper is an in-memory venue for dry runs: limit orders rest, market orders fill at mark.
package paper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	exchange "perp-gateway/pkg/exchanges/common"
)

type market struct {
	meta Market
	mark decimal.Decimal
}

type position struct {
	size  decimal.Decimal // signed
	entry decimal.Decimal
}

type restingOrder struct {
	id    string
	asset string
	isBuy bool
	size  decimal.Decimal
	price decimal.Decimal
}

type account struct {
	positions map[string]*position
	orders    map[string]*restingOrder
	leverage  map[string]int
}

// Venue holds simulated books for every wallet. Safe for concurrent use.
type Venue struct {
	mu       sync.Mutex
	markets  map[string]*market
	order    []string
	accounts map[string]*account
	log      *logrus.Entry
}

// NewVenue builds a venue from seed markets. Markets with unparsable mark prices are rejected.
func NewVenue(markets []Market, log *logrus.Entry) (*Venue, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	v := &Venue{
		markets:  make(map[string]*market, len(markets)),
		accounts: make(map[string]*account),
		log:      log,
	}
	for _, m := range markets {
		mark, err := decimal.NewFromString(m.MarkPrice)
		if err != nil || !mark.IsPositive() {
			return nil, fmt.Errorf("market %s: invalid mark price %q", m.Name, m.MarkPrice)
		}
		if m.MaxLeverage <= 0 {
			m.MaxLeverage = 20
		}
		if _, dup := v.markets[m.Name]; !dup {
			v.order = append(v.order, m.Name)
		}
		v.markets[m.Name] = &market{meta: m, mark: mark}
	}
	return v, nil
}

func walletKey(wallet string) string {
	return strings.ToLower(wallet)
}

func (v *Venue) accountLocked(wallet string) *account {
	key := walletKey(wallet)
	a, ok := v.accounts[key]
	if !ok {
		a = &account{
			positions: make(map[string]*position),
			orders:    make(map[string]*restingOrder),
			leverage:  make(map[string]int),
		}
		v.accounts[key] = a
	}
	return a
}

// Meta implements exchange.MarketData.
func (v *Venue) Meta(ctx context.Context) ([]exchange.AssetMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]exchange.AssetMeta, 0, len(v.order))
	for _, name := range v.order {
		m := v.markets[name]
		out = append(out, exchange.AssetMeta{
			Name:         name,
			MarkPrice:    m.mark.String(),
			IndexPrice:   m.meta.IndexPrice,
			OpenInterest: m.meta.OpenInterest,
			FundingRate:  m.meta.FundingRate,
			MaxLeverage:  m.meta.MaxLeverage,
		})
	}
	return out, nil
}

// UserState implements exchange.PositionTracker.
func (v *Venue) UserState(ctx context.Context, wallet string) (exchange.UserState, error) {
	if err := ctx.Err(); err != nil {
		return exchange.UserState{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	a := v.accountLocked(wallet)
	var st exchange.UserState
	for _, name := range v.order {
		p, ok := a.positions[name]
		if !ok || p.size.IsZero() {
			continue
		}
		pnl := v.markets[name].mark.Sub(p.entry).Mul(p.size)
		st.AssetPositions = append(st.AssetPositions, exchange.RawPosition{
			Coin:          name,
			Szi:           p.size.String(),
			EntryPx:       p.entry.String(),
			UnrealizedPnl: pnl.String(),
			Leverage:      a.leverageFor(name),
		})
	}

	orders := make([]*restingOrder, 0, len(a.orders))
	for _, o := range a.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].id < orders[j].id })
	for _, o := range orders {
		side := "A"
		if o.isBuy {
			side = "B"
		}
		st.Orders = append(st.Orders, exchange.RawOrder{
			Coin: o.asset, Side: side, LimitPx: o.price.String(), Sz: o.size.String(), Oid: o.id,
		})
	}
	return st, nil
}

func (a *account) leverageFor(asset string) int {
	if l, ok := a.leverage[asset]; ok {
		return l
	}
	return 1
}

// SetMarkPrice moves the mark and fills resting orders it crosses.
func (v *Venue) SetMarkPrice(asset string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("mark price must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	m, ok := v.markets[asset]
	if !ok {
		return exchange.ErrUnknownAsset
	}
	m.mark = price

	for wallet, a := range v.accounts {
		for id, o := range a.orders {
			if o.asset != asset || !marketable(o.isBuy, o.price, price) {
				continue
			}
			a.fill(asset, o.isBuy, o.size, o.price)
			delete(a.orders, id)
			v.log.WithFields(logrus.Fields{"wallet": wallet, "oid": id, "asset": asset}).Debug("paper limit order filled")
		}
	}
	return nil
}

func marketable(isBuy bool, limit, mark decimal.Decimal) bool {
	if isBuy {
		return limit.GreaterThanOrEqual(mark)
	}
	return limit.LessThanOrEqual(mark)
}

// fill applies a trade to the position, keeping a size-weighted entry price.
func (a *account) fill(asset string, isBuy bool, size, price decimal.Decimal) {
	p, ok := a.positions[asset]
	if !ok {
		p = &position{}
		a.positions[asset] = p
	}
	delta := size
	if !isBuy {
		delta = size.Neg()
	}
	next := p.size.Add(delta)

	switch {
	case p.size.IsZero() || p.size.Sign() == delta.Sign():
		notional := p.size.Abs().Mul(p.entry).Add(size.Mul(price))
		p.entry = notional.Div(next.Abs())
	case next.IsZero():
		p.entry = decimal.Zero
	case next.Sign() != p.size.Sign():
		p.entry = price
	}
	p.size = next
	if p.size.IsZero() {
		delete(a.positions, asset)
	}
}

// Transport returns the order transport bound to wallet.
func (v *Venue) Transport(wallet string) exchange.OrderTransport {
	return &walletTransport{venue: v, wallet: wallet}
}

type walletTransport struct {
	venue  *Venue
	wallet string
}

func (t *walletTransport) Submit(ctx context.Context, req exchange.OrderRequest) (exchange.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return exchange.SubmitResult{}, err
	}
	v := t.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	m, ok := v.markets[req.Asset]
	if !ok {
		return exchange.SubmitResult{}, &exchange.RejectError{Reason: "unknown asset " + req.Asset}
	}
	if !req.Size.IsPositive() {
		return exchange.SubmitResult{}, &exchange.RejectError{Reason: "order size must be positive"}
	}
	a := v.accountLocked(t.wallet)

	size := req.Size
	if req.ReduceOnly {
		p, ok := a.positions[req.Asset]
		if !ok || p.size.IsZero() || (p.size.IsPositive() == req.IsBuy) {
			return exchange.SubmitResult{}, &exchange.RejectError{Reason: "reduce only order would increase position"}
		}
		size = decimal.Min(size, p.size.Abs())
	}

	id := uuid.NewString()
	switch o := req.Type.(type) {
	case exchange.MarketOrder:
		a.fill(req.Asset, req.IsBuy, size, m.mark)
		return exchange.SubmitResult{OrderID: id, Filled: true, AvgPrice: m.mark}, nil
	case exchange.LimitOrder:
		if !req.Price.IsPositive() {
			return exchange.SubmitResult{}, &exchange.RejectError{Reason: "limit price must be positive"}
		}
		if marketable(req.IsBuy, req.Price, m.mark) {
			if o.TIF == exchange.TIFALO {
				return exchange.SubmitResult{}, &exchange.RejectError{Reason: "post only order would have immediately matched"}
			}
			a.fill(req.Asset, req.IsBuy, size, m.mark)
			return exchange.SubmitResult{OrderID: id, Filled: true, AvgPrice: m.mark}, nil
		}
		if o.TIF == exchange.TIFIOC {
			return exchange.SubmitResult{}, &exchange.RejectError{Reason: "ioc order could not immediately match"}
		}
		a.orders[id] = &restingOrder{id: id, asset: req.Asset, isBuy: req.IsBuy, size: size, price: req.Price}
		return exchange.SubmitResult{OrderID: id}, nil
	default:
		return exchange.SubmitResult{}, &exchange.RejectError{Reason: fmt.Sprintf("unsupported order type %T", req.Type)}
	}
}

func (t *walletTransport) Cancel(ctx context.Context, asset, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := t.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	a := v.accountLocked(t.wallet)
	o, ok := a.orders[orderID]
	if !ok || o.asset != asset {
		return exchange.ErrOrderNotFound
	}
	delete(a.orders, orderID)
	return nil
}

func (t *walletTransport) UpdateLeverage(ctx context.Context, asset string, leverage int, cross bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := t.venue
	v.mu.Lock()
	defer v.mu.Unlock()

	m, ok := v.markets[asset]
	if !ok {
		return exchange.ErrUnknownAsset
	}
	if leverage < 1 || leverage > m.meta.MaxLeverage {
		return &exchange.RejectError{Reason: fmt.Sprintf("leverage %d outside 1..%d", leverage, m.meta.MaxLeverage)}
	}
	v.accountLocked(t.wallet).leverage[asset] = leverage
	return nil
}
