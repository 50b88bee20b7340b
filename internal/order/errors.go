package order

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderSubmit covers invalid order input and venue rejections.
	ErrOrderSubmit = errors.New("order submission failed")
	// ErrInvalidRequest means the call was malformed before reaching the venue.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrVenueRejected is a venue refusal of a non-order request such as a cancel or leverage change.
	ErrVenueRejected = errors.New("request rejected by venue")
	// ErrOrderNotFound means the venue has no cancellable order with that id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNoPosition means there is nothing to close.
	ErrNoPosition = errors.New("no open position")
	// ErrMarketData is the parent of market data lookup failures.
	ErrMarketData = errors.New("market data error")
	// ErrAssetNotFound means the asset is not in the venue universe.
	ErrAssetNotFound = fmt.Errorf("%w: asset not found", ErrMarketData)
	// ErrUpstreamTimeout means the venue did not answer within the configured timeout.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstream wraps any other venue failure. The raw cause is logged, not returned.
	ErrUpstream = errors.New("upstream error")
)
