// Package hyperliquid talks to the Hyperliquid perpetuals API over HTTP.
package hyperliquid

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	exchange "perp-gateway/pkg/exchanges/common"
)

const (
	MainnetURL = "https://api.hyperliquid.xyz"
	TestnetURL = "https://api.hyperliquid-testnet.xyz"

	infoPath     = "/info"
	exchangePath = "/exchange"

	weightInfoHeavy = 20
	weightInfoLight = 2
	weightExchange  = 1
)

// Config is shared by the info and exchange clients.
type Config struct {
	BaseURL string
	// Timeout is the per-request HTTP ceiling. Callers still pass their own context deadline.
	Timeout time.Duration
	Limiter *exchange.WeightLimiter
	Logger  *logrus.Entry
}

type restClient struct {
	http    *resty.Client
	limiter *exchange.WeightLimiter
	log     *logrus.Entry
}

func newRestClient(cfg Config) *restClient {
	host := strings.TrimSuffix(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = exchange.NewWeightLimiter(0, log)
	}

	// Submissions must never be replayed, so retries stay off for every call.
	rc := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "perp-gateway")

	return &restClient{http: rc, limiter: limiter, log: log}
}

func (c *restClient) post(ctx context.Context, path string, weight int, body, out any) error {
	if err := c.limiter.Wait(ctx, weight); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "wait for venue budget")
		}
		// The limiter refuses early when the wait would outlast the deadline.
		return errors.Wrap(context.DeadlineExceeded, err.Error())
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return errors.Wrapf(err, "post %s", path)
	}
	if !resp.IsSuccess() {
		return parseHTTPError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

// HTTPError is a non-2xx venue response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return "venue http " + strconv.Itoa(e.Status) + ": " + e.Body
}

func parseHTTPError(resp *resty.Response) error {
	body := strings.TrimSpace(string(resp.Body()))
	if len(body) > 512 {
		body = body[:512]
	}
	return errors.WithStack(&HTTPError{Status: resp.StatusCode(), Body: body})
}
