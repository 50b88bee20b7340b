package common

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// TimeInForce captures TIF semantics for resting limit orders.
type TimeInForce string

const (
	TIFGTC TimeInForce = "Gtc" // Good Till Cancelled
	TIFIOC TimeInForce = "Ioc" // Immediate Or Cancel
	TIFALO TimeInForce = "Alo" // Add Liquidity Only (post only)
)

// OrderType is a closed set: LimitOrder or MarketOrder.
type OrderType interface {
	orderType() string
}

// LimitOrder rests at the request price under TIF.
type LimitOrder struct {
	TIF TimeInForce
}

// MarketOrder executes at the best available price. Requests carry price 0.
type MarketOrder struct{}

func (LimitOrder) orderType() string  { return "limit" }
func (MarketOrder) orderType() string { return "market" }

// OrderTypeName returns "limit", "market" or "" for nil.
func OrderTypeName(t OrderType) string {
	if t == nil {
		return ""
	}
	return t.orderType()
}

// OrderRequest captures an order intent to be sent to a venue.
type OrderRequest struct {
	Asset      string
	IsBuy      bool
	Size       decimal.Decimal
	Price      decimal.Decimal // zero for MarketOrder
	Type       OrderType
	ReduceOnly bool
}

// SubmitResult is the venue acknowledgement of a submission.
type SubmitResult struct {
	OrderID  string
	Filled   bool
	AvgPrice decimal.Decimal
}

// AssetMeta is one entry of the venue instrument universe, values as sent by the venue.
type AssetMeta struct {
	Name         string
	MarkPrice    string
	IndexPrice   string
	OpenInterest string
	FundingRate  string
	MaxLeverage  int
}

// RawPosition is an unparsed position record.
type RawPosition struct {
	Coin          string
	Szi           string // signed size, negative is short
	EntryPx       string
	UnrealizedPnl string
	Leverage      int
}

// RawOrder is an unparsed resting order. Side "B" is bid; anything else is ask.
type RawOrder struct {
	Coin    string
	Side    string
	LimitPx string
	Sz      string
	Oid     string
}

// UserState is the raw account snapshot of one wallet.
type UserState struct {
	AssetPositions []RawPosition
	Orders         []RawOrder
}

var (
	// ErrOrderNotFound means the venue has no cancellable order with that id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUnknownAsset means the asset is not in the venue universe.
	ErrUnknownAsset = errors.New("unknown asset")
)

// RejectError is a venue refusal of a well-formed request.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("venue rejected: %s", e.Reason)
}
