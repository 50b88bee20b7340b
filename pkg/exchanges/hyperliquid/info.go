package hyperliquid

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	exchange "perp-gateway/pkg/exchanges/common"
)

// InfoClient is the read-only venue client. It implements exchange.InfoClient.
type InfoClient struct {
	rest *restClient

	mu         sync.RWMutex
	assetIndex map[string]int
}

func NewInfoClient(cfg Config) *InfoClient {
	return &InfoClient{
		rest:       newRestClient(cfg),
		assetIndex: make(map[string]int),
	}
}

type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// Meta returns the perpetuals universe joined with live asset contexts.
func (c *InfoClient) Meta(ctx context.Context) ([]exchange.AssetMeta, error) {
	var raw []json.RawMessage
	if err := c.rest.post(ctx, infoPath, weightInfoHeavy, infoRequest{Type: "metaAndAssetCtxs"}, &raw); err != nil {
		return nil, err
	}
	if len(raw) != 2 {
		return nil, errors.Errorf("metaAndAssetCtxs: expected 2 elements, got %d", len(raw))
	}

	var meta Meta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, errors.Wrap(err, "decode meta")
	}
	var ctxs []AssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return nil, errors.Wrap(err, "decode asset contexts")
	}

	out := make([]exchange.AssetMeta, 0, len(meta.Universe))
	index := make(map[string]int, len(meta.Universe))
	for i, a := range meta.Universe {
		index[a.Name] = i
		m := exchange.AssetMeta{Name: a.Name, MaxLeverage: a.MaxLeverage}
		if i < len(ctxs) {
			m.MarkPrice = ctxs[i].MarkPx
			m.IndexPrice = ctxs[i].OraclePx
			m.OpenInterest = ctxs[i].OpenInterest
			m.FundingRate = ctxs[i].Funding
		}
		out = append(out, m)
	}

	c.mu.Lock()
	c.assetIndex = index
	c.mu.Unlock()
	return out, nil
}

// UserState returns positions and resting orders for wallet.
func (c *InfoClient) UserState(ctx context.Context, wallet string) (exchange.UserState, error) {
	var state AccountState
	if err := c.rest.post(ctx, infoPath, weightInfoLight, infoRequest{Type: "clearinghouseState", User: wallet}, &state); err != nil {
		return exchange.UserState{}, err
	}
	var orders []OpenOrder
	if err := c.rest.post(ctx, infoPath, weightInfoHeavy, infoRequest{Type: "openOrders", User: wallet}, &orders); err != nil {
		return exchange.UserState{}, err
	}

	out := exchange.UserState{
		AssetPositions: make([]exchange.RawPosition, 0, len(state.AssetPositions)),
		Orders:         make([]exchange.RawOrder, 0, len(orders)),
	}
	for _, ap := range state.AssetPositions {
		p := ap.Position
		out.AssetPositions = append(out.AssetPositions, exchange.RawPosition{
			Coin:          p.Coin,
			Szi:           p.Szi,
			EntryPx:       p.EntryPx,
			UnrealizedPnl: p.UnrealizedPnl,
			Leverage:      p.Leverage.Value,
		})
	}
	for _, o := range orders {
		out.Orders = append(out.Orders, exchange.RawOrder{
			Coin:    o.Coin,
			Side:    o.Side,
			LimitPx: o.LimitPx,
			Sz:      o.Sz,
			Oid:     strconv.FormatInt(o.Oid, 10),
		})
	}
	return out, nil
}

// AssetIndex resolves a coin name to its universe index, refreshing Meta on a miss.
func (c *InfoClient) AssetIndex(ctx context.Context, asset string) (int, error) {
	c.mu.RLock()
	idx, ok := c.assetIndex[asset]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}

	if _, err := c.Meta(ctx); err != nil {
		return 0, err
	}

	c.mu.RLock()
	idx, ok = c.assetIndex[asset]
	c.mu.RUnlock()
	if !ok {
		return 0, errors.Wrap(exchange.ErrUnknownAsset, asset)
	}
	return idx, nil
}
