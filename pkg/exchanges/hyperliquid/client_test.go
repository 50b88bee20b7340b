package hyperliquid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "perp-gateway/pkg/exchanges/common"
	"perp-gateway/pkg/signer"
)

const metaBody = `[
  {"universe":[{"name":"BTC","szDecimals":5,"maxLeverage":50},{"name":"ETH","szDecimals":4,"maxLeverage":25}]},
  [{"funding":"0.0000125","openInterest":"1200.5","markPx":"64000.5","oraclePx":"63990"},
   {"funding":"-0.00001","openInterest":"9000","markPx":"2500","oraclePx":"2499.5"}]
]`

// fakeVenue records /exchange bodies and answers with canned responses.
type fakeVenue struct {
	mu        sync.Mutex
	exchanges []map[string]any
	reply     string
	delay     time.Duration
}

func (f *fakeVenue) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/info":
			switch body["type"] {
			case "metaAndAssetCtxs":
				_, _ = io.WriteString(w, metaBody)
			case "clearinghouseState":
				_, _ = io.WriteString(w, `{"assetPositions":[
					{"type":"oneWay","position":{"coin":"ETH","szi":"-2.5","entryPx":"2510.1","unrealizedPnl":"25.25","leverage":{"type":"cross","value":10}}}
				]}`)
			case "openOrders":
				_, _ = io.WriteString(w, `[{"coin":"BTC","side":"B","limitPx":"60000","sz":"0.1","oid":77,"timestamp":1}]`)
			default:
				w.WriteHeader(http.StatusBadRequest)
			}
		case "/exchange":
			f.mu.Lock()
			f.exchanges = append(f.exchanges, body)
			reply := f.reply
			f.mu.Unlock()
			_, _ = io.WriteString(w, reply)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *fakeVenue) last() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.exchanges) == 0 {
		return nil
	}
	return f.exchanges[len(f.exchanges)-1]
}

func newTestClients(t *testing.T, f *fakeVenue) (*InfoClient, *ExchangeClient, *signer.Signer) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	s, err := signer.Generate()
	require.NoError(t, err)
	cfg := Config{BaseURL: srv.URL, Timeout: 2 * time.Second}
	info := NewInfoClient(cfg)
	return info, NewExchangeClient(cfg, s, info), s
}

func TestMeta(t *testing.T) {
	info, _, _ := newTestClients(t, &fakeVenue{})

	metas, err := info.Meta(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, exchange.AssetMeta{
		Name: "ETH", MarkPrice: "2500", IndexPrice: "2499.5",
		OpenInterest: "9000", FundingRate: "-0.00001", MaxLeverage: 25,
	}, metas[1])

	idx, err := info.AssetIndex(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = info.AssetIndex(context.Background(), "DOGE")
	assert.ErrorIs(t, err, exchange.ErrUnknownAsset)
}

func TestUserState(t *testing.T) {
	info, _, _ := newTestClients(t, &fakeVenue{})

	st, err := info.UserState(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, st.AssetPositions, 1)
	assert.Equal(t, "-2.5", st.AssetPositions[0].Szi)
	assert.Equal(t, 10, st.AssetPositions[0].Leverage)
	require.Len(t, st.Orders, 1)
	assert.Equal(t, "77", st.Orders[0].Oid)
	assert.Equal(t, "B", st.Orders[0].Side)
}

func TestSubmitMarketSendsTagAndZeroPrice(t *testing.T) {
	f := &fakeVenue{reply: `{"status":"ok","response":{"type":"order","data":{"statuses":[{"filled":{"totalSz":"1","avgPx":"2500.5","oid":9}}]}}}`}
	_, ex, s := newTestClients(t, f)

	res, err := ex.Submit(context.Background(), exchange.OrderRequest{
		Asset: "ETH", IsBuy: true, Size: decimal.RequireFromString("1"),
		Price: decimal.Zero, Type: exchange.MarketOrder{},
	})
	require.NoError(t, err)
	assert.Equal(t, "9", res.OrderID)
	assert.True(t, res.Filled)
	assert.True(t, res.AvgPrice.Equal(decimal.RequireFromString("2500.5")))

	body := f.last()
	action := body["action"].(map[string]any)
	order := action["orders"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1), order["a"])
	assert.Equal(t, "0", order["p"])
	assert.Equal(t, map[string]any{"market": map[string]any{}}, order["t"])

	// The signature must verify against the re-derived digest.
	nonce := uint64(body["nonce"].(float64))
	connID, err := signer.ActionHash(orderAction{Type: "order", Grouping: "na", Orders: []OrderWire{{
		Asset: 1, IsBuy: true, LimitPx: "0", Sz: "1", OrderType: OrderType{Market: &struct{}{}},
	}}}, nonce, nil)
	require.NoError(t, err)
	digest, err := signer.HashAgent(signer.AgentDomain(), "b", connID)
	require.NoError(t, err)

	sigMap := body["signature"].(map[string]any)
	raw, err := signer.Signature{R: sigMap["r"].(string), S: sigMap["s"].(string), V: byte(sigMap["v"].(float64))}.Bytes()
	require.NoError(t, err)
	who, err := signer.RecoverAddress(digest, raw)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), who)
}

func TestSubmitLimitResting(t *testing.T) {
	f := &fakeVenue{reply: `{"status":"ok","response":{"type":"order","data":{"statuses":[{"resting":{"oid":1234}}]}}}`}
	_, ex, _ := newTestClients(t, f)

	res, err := ex.Submit(context.Background(), exchange.OrderRequest{
		Asset: "BTC", IsBuy: false, Size: decimal.RequireFromString("0.01"),
		Price: decimal.RequireFromString("70000"), Type: exchange.LimitOrder{TIF: exchange.TIFGTC},
	})
	require.NoError(t, err)
	assert.Equal(t, "1234", res.OrderID)
	assert.False(t, res.Filled)

	order := f.last()["action"].(map[string]any)["orders"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"limit": map[string]any{"tif": "Gtc"}}, order["t"])
	assert.Equal(t, "70000", order["p"])
}

func TestSubmitRejected(t *testing.T) {
	f := &fakeVenue{reply: `{"status":"ok","response":{"type":"order","data":{"statuses":[{"error":"Insufficient margin to place order."}]}}}`}
	_, ex, _ := newTestClients(t, f)

	_, err := ex.Submit(context.Background(), exchange.OrderRequest{
		Asset: "BTC", IsBuy: true, Size: decimal.NewFromInt(1),
		Price: decimal.NewFromInt(1), Type: exchange.LimitOrder{TIF: exchange.TIFGTC},
	})
	var rej *exchange.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "Insufficient margin")
}

func TestTopLevelError(t *testing.T) {
	f := &fakeVenue{reply: `{"status":"err","response":"User or API Wallet does not exist."}`}
	_, ex, _ := newTestClients(t, f)

	err := ex.UpdateLeverage(context.Background(), "BTC", 5, true)
	var rej *exchange.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "User or API Wallet does not exist.", rej.Reason)
}

func TestCancel(t *testing.T) {
	f := &fakeVenue{reply: `{"status":"ok","response":{"type":"cancel","data":{"statuses":["success"]}}}`}
	_, ex, _ := newTestClients(t, f)
	require.NoError(t, ex.Cancel(context.Background(), "BTC", "77"))

	cancel := f.last()["action"].(map[string]any)["cancels"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(77), cancel["o"])

	f.mu.Lock()
	f.reply = `{"status":"ok","response":{"type":"cancel","data":{"statuses":[{"error":"Order was never placed, already canceled, or filled."}]}}}`
	f.mu.Unlock()
	err := ex.Cancel(context.Background(), "BTC", "78")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)

	err = ex.Cancel(context.Background(), "BTC", "not-a-number")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
}

func TestHTTPErrorAndDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	}))
	defer srv.Close()

	info := NewInfoClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := info.Meta(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)

	slow := &fakeVenue{delay: 200 * time.Millisecond}
	slowInfo, _, _ := newTestClients(t, slow)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = slowInfo.Meta(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
