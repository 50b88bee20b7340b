package hyperliquid

import (
	"encoding/json"

	"perp-gateway/pkg/signer"
)

// OrderType mirrors the venue orderType object. Exactly one field is set.
type OrderType struct {
	Limit  *LimitOrderType `json:"limit,omitempty"`
	Market *struct{}       `json:"market,omitempty"`
}

// LimitOrderType describes limit order behaviour.
type LimitOrderType struct {
	TIF string `json:"tif"` // Valid values: "Alo", "Ioc", "Gtc"
}

// OrderWire is one order inside an "order" action.
type OrderWire struct {
	Asset      int       `json:"a"`
	IsBuy      bool      `json:"b"`
	LimitPx    string    `json:"p"`
	Sz         string    `json:"s"`
	ReduceOnly bool      `json:"r"`
	OrderType  OrderType `json:"t"`
}

type orderAction struct {
	Type     string      `json:"type"`
	Orders   []OrderWire `json:"orders"`
	Grouping string      `json:"grouping"`
}

type cancelWire struct {
	Asset int   `json:"a"`
	Oid   int64 `json:"o"`
}

type cancelAction struct {
	Type    string       `json:"type"`
	Cancels []cancelWire `json:"cancels"`
}

type updateLeverageAction struct {
	Type     string `json:"type"`
	Asset    int    `json:"asset"`
	IsCross  bool   `json:"isCross"`
	Leverage int    `json:"leverage"`
}

type exchangeRequest struct {
	Action    any              `json:"action"`
	Nonce     uint64           `json:"nonce"`
	Signature signer.Signature `json:"signature"`
}

// exchangeResponse is {"status":"ok","response":{...}} or {"status":"err","response":"msg"}.
type exchangeResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type exchangeResponseBody struct {
	Type string `json:"type"`
	Data struct {
		Statuses []json.RawMessage `json:"statuses"`
	} `json:"data"`
}

// OrderStatusResponse is one entry of an order action's statuses.
type OrderStatusResponse struct {
	Resting *RestingOrder `json:"resting,omitempty"`
	Filled  *FilledOrder  `json:"filled,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type RestingOrder struct {
	Oid int64 `json:"oid"`
}

type FilledOrder struct {
	TotalSz string `json:"totalSz"`
	AvgPx   string `json:"avgPx"`
	Oid     int64  `json:"oid"`
}

// Meta is the perpetuals universe.
type Meta struct {
	Universe []AssetInfo `json:"universe"`
}

type AssetInfo struct {
	Name        string `json:"name"`
	SzDecimals  int    `json:"szDecimals"`
	MaxLeverage int    `json:"maxLeverage"`
}

// AssetCtx carries live market stats, index-aligned with Meta.Universe.
type AssetCtx struct {
	Funding      string `json:"funding"`
	OpenInterest string `json:"openInterest"`
	MarkPx       string `json:"markPx"`
	OraclePx     string `json:"oraclePx"`
	MidPx        string `json:"midPx"`
}

// AccountState is the clearinghouseState response.
type AccountState struct {
	AssetPositions []AssetPosition `json:"assetPositions"`
}

type AssetPosition struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

type Position struct {
	Coin          string   `json:"coin"`
	EntryPx       string   `json:"entryPx"`
	Szi           string   `json:"szi"` // Signed position size.
	UnrealizedPnl string   `json:"unrealizedPnl"`
	Leverage      Leverage `json:"leverage"`
}

type Leverage struct {
	Type  string `json:"type"` // "cross" or "isolated".
	Value int    `json:"value"`
}

// OpenOrder is one entry of the openOrders response.
type OpenOrder struct {
	Coin      string `json:"coin"`
	Side      string `json:"side"`
	LimitPx   string `json:"limitPx"`
	Sz        string `json:"sz"`
	Oid       int64  `json:"oid"`
	Timestamp int64  `json:"timestamp"`
}
