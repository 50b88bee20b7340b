package hyperliquid

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	exchange "perp-gateway/pkg/exchanges/common"
	"perp-gateway/pkg/signer"
)

// ExchangeClient signs and sends actions for one wallet. It implements exchange.OrderTransport.
type ExchangeClient struct {
	rest   *restClient
	info   *InfoClient
	signer *signer.Signer
	nonces *exchange.NonceSource
	domain signer.Domain
	source string
}

// NewExchangeClient binds s to the venue. info resolves asset indexes.
func NewExchangeClient(cfg Config, s *signer.Signer, info *InfoClient) *ExchangeClient {
	source := "b"
	if strings.TrimSuffix(cfg.BaseURL, "/") == MainnetURL {
		source = "a"
	}
	return &ExchangeClient{
		rest:   newRestClient(cfg),
		info:   info,
		signer: s,
		nonces: exchange.NewNonceSource(nil),
		domain: signer.AgentDomain(),
		source: source,
	}
}

// Submit places one order. Limit orders carry their TIF; market orders carry the market tag.
func (c *ExchangeClient) Submit(ctx context.Context, req exchange.OrderRequest) (exchange.SubmitResult, error) {
	idx, err := c.info.AssetIndex(ctx, req.Asset)
	if err != nil {
		return exchange.SubmitResult{}, err
	}

	wire := OrderWire{
		Asset:      idx,
		IsBuy:      req.IsBuy,
		LimitPx:    req.Price.String(),
		Sz:         req.Size.String(),
		ReduceOnly: req.ReduceOnly,
	}
	switch t := req.Type.(type) {
	case exchange.LimitOrder:
		wire.OrderType.Limit = &LimitOrderType{TIF: string(t.TIF)}
	case exchange.MarketOrder:
		wire.OrderType.Market = &struct{}{}
	default:
		return exchange.SubmitResult{}, errors.Errorf("unsupported order type %T", req.Type)
	}

	statuses, err := c.send(ctx, orderAction{Type: "order", Orders: []OrderWire{wire}, Grouping: "na"})
	if err != nil {
		return exchange.SubmitResult{}, err
	}
	if len(statuses) == 0 {
		return exchange.SubmitResult{}, errors.New("order response has no statuses")
	}

	var st OrderStatusResponse
	if err := json.Unmarshal(statuses[0], &st); err != nil {
		return exchange.SubmitResult{}, errors.Wrap(err, "decode order status")
	}
	switch {
	case st.Error != "":
		return exchange.SubmitResult{}, &exchange.RejectError{Reason: st.Error}
	case st.Resting != nil:
		return exchange.SubmitResult{OrderID: strconv.FormatInt(st.Resting.Oid, 10)}, nil
	case st.Filled != nil:
		avg, _ := decimal.NewFromString(st.Filled.AvgPx)
		return exchange.SubmitResult{
			OrderID:  strconv.FormatInt(st.Filled.Oid, 10),
			Filled:   true,
			AvgPrice: avg,
		}, nil
	default:
		return exchange.SubmitResult{}, errors.Errorf("unrecognised order status %s", statuses[0])
	}
}

// Cancel cancels a resting order. Any per-order error from the venue means there is nothing to cancel.
func (c *ExchangeClient) Cancel(ctx context.Context, asset, orderID string) error {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil || oid <= 0 {
		return errors.Wrapf(exchange.ErrOrderNotFound, "order id %q", orderID)
	}
	idx, err := c.info.AssetIndex(ctx, asset)
	if err != nil {
		return err
	}

	statuses, err := c.send(ctx, cancelAction{Type: "cancel", Cancels: []cancelWire{{Asset: idx, Oid: oid}}})
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		return errors.New("cancel response has no statuses")
	}

	var ok string
	if json.Unmarshal(statuses[0], &ok) == nil && ok == "success" {
		return nil
	}
	var st OrderStatusResponse
	if err := json.Unmarshal(statuses[0], &st); err == nil && st.Error != "" {
		return errors.Wrap(exchange.ErrOrderNotFound, st.Error)
	}
	return errors.Errorf("unrecognised cancel status %s", statuses[0])
}

// UpdateLeverage sets leverage for asset, cross or isolated.
func (c *ExchangeClient) UpdateLeverage(ctx context.Context, asset string, leverage int, cross bool) error {
	idx, err := c.info.AssetIndex(ctx, asset)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, updateLeverageAction{Type: "updateLeverage", Asset: idx, IsCross: cross, Leverage: leverage})
	return err
}

// send signs action with a fresh nonce and returns the per-action statuses.
func (c *ExchangeClient) send(ctx context.Context, action any) ([]json.RawMessage, error) {
	nonce := c.nonces.Next()
	sig, err := c.signer.SignAction(c.domain, c.source, action, nonce, nil)
	if err != nil {
		return nil, errors.Wrap(err, "sign action")
	}

	var resp exchangeResponse
	req := exchangeRequest{Action: action, Nonce: nonce, Signature: sig}
	if err := c.rest.post(ctx, exchangePath, weightExchange, req, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "ok" {
		var msg string
		if json.Unmarshal(resp.Response, &msg) != nil {
			msg = string(resp.Response)
		}
		return nil, &exchange.RejectError{Reason: msg}
	}

	var body exchangeResponseBody
	if len(resp.Response) > 0 {
		if err := json.Unmarshal(resp.Response, &body); err != nil {
			return nil, errors.Wrap(err, "decode exchange response")
		}
	}
	return body.Data.Statuses, nil
}
