package common

import "context"

// MarketData resolves the venue instrument universe.
type MarketData interface {
	Meta(ctx context.Context) ([]AssetMeta, error)
}

// PositionTracker fetches raw account state for a wallet.
type PositionTracker interface {
	UserState(ctx context.Context, wallet string) (UserState, error)
}

// InfoClient is the read-only side of a session.
type InfoClient interface {
	MarketData
	PositionTracker
}

// OrderTransport is the signing side of a session.
// Implementations never retry submissions.
type OrderTransport interface {
	Submit(ctx context.Context, req OrderRequest) (SubmitResult, error)
	Cancel(ctx context.Context, asset, orderID string) error
	UpdateLeverage(ctx context.Context, asset string, leverage int, cross bool) error
}
