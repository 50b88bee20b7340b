package order

import (
	"strings"

	"github.com/shopspring/decimal"

	exchange "perp-gateway/pkg/exchanges/common"
)

// Status of an order as reported by the engine.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCancelled Status = "cancelled"
	StatusClosing   Status = "closing"
)

// Order is an immutable result of an engine operation.
// Price is zero for market orders.
type Order struct {
	Asset    string          `json:"asset"`
	OrderID  string          `json:"order_id"`
	Size     decimal.Decimal `json:"size"`
	Price    decimal.Decimal `json:"price"`
	IsBuy    bool            `json:"is_buy"`
	Status   Status          `json:"status"`
	Type     string          `json:"type,omitempty"`
	Filled   bool            `json:"filled"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// Position is a snapshot; Size is negative for shorts.
type Position struct {
	Asset         string          `json:"asset"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Leverage      int             `json:"leverage"`
}

type MarketInfo struct {
	Asset        string          `json:"asset"`
	MarkPrice    decimal.Decimal `json:"mark_price"`
	IndexPrice   decimal.Decimal `json:"index_price"`
	OpenInterest decimal.Decimal `json:"open_interest"`
	FundingRate  decimal.Decimal `json:"funding_rate"`
}

// ParseDecimal returns zero for empty or unparsable input.
func ParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SideIsBuy reports whether a venue side marker denotes a buy.
// Only "B" is a buy; every other marker, including unknown ones, is a sell.
func SideIsBuy(marker string) bool {
	return marker == "B"
}

func positionFromRaw(p exchange.RawPosition) Position {
	return Position{
		Asset:         p.Coin,
		Size:          ParseDecimal(p.Szi),
		EntryPrice:    ParseDecimal(p.EntryPx),
		UnrealizedPnL: ParseDecimal(p.UnrealizedPnl),
		Leverage:      p.Leverage,
	}
}

func orderFromRaw(o exchange.RawOrder) Order {
	return Order{
		Asset:   o.Coin,
		OrderID: o.Oid,
		Size:    ParseDecimal(o.Sz),
		Price:   ParseDecimal(o.LimitPx),
		IsBuy:   SideIsBuy(o.Side),
		Status:  StatusOpen,
		Type:    "limit",
	}
}

func marketInfoFromMeta(m exchange.AssetMeta) MarketInfo {
	return MarketInfo{
		Asset:        m.Name,
		MarkPrice:    ParseDecimal(m.MarkPrice),
		IndexPrice:   ParseDecimal(m.IndexPrice),
		OpenInterest: ParseDecimal(m.OpenInterest),
		FundingRate:  ParseDecimal(m.FundingRate),
	}
}

func findAsset(universe []exchange.AssetMeta, asset string) (exchange.AssetMeta, bool) {
	for _, m := range universe {
		if m.Name == asset {
			return m, true
		}
	}
	return exchange.AssetMeta{}, false
}
