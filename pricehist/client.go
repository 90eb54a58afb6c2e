// Package pricehist downloads OHLCV history from the Yahoo chart API and
// keeps the local bar tables complete.
package pricehist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/viktsys/twmarket/config"
	"github.com/viktsys/twmarket/metrics"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// ErrNoData means the API answered but carried no usable bars.
var ErrNoData = errors.New("no price data")

// Bar is one OHLCV bar. Missing is set when the close was null.
type Bar struct {
	Time    time.Time
	Open    float64
	High    float64
	Low     float64
	Close   float64
	Volume  int64
	Missing bool
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Client fetches chart history with retries.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	baseURL   string
	userAgent string
	retries   int
	log       *logrus.Entry

	// RetryInterval is the first backoff wait; it doubles per attempt.
	RetryInterval time.Duration
}

func NewClient(cfg config.HTTPConfig, baseURL string, log *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(limit, 1),
		baseURL:       baseURL,
		userAgent:     cfg.UserAgent,
		retries:       max(cfg.DownloadRetries, 1),
		log:           log.WithField("component", "pricehist"),
		RetryInterval: time.Second,
	}
}

// History fetches symbol over the given Yahoo range at interval.
func (c *Client) History(ctx context.Context, symbol, period, interval string) ([]Bar, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.RetryInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries-1)), ctx)

	var bars []Bar
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		bars, err = c.fetch(ctx, symbol, period, interval)
		if err != nil && !errors.Is(err, ErrNoData) {
			c.log.WithFields(logrus.Fields{
				"symbol":   symbol,
				"interval": interval,
				"attempt":  attempt,
			}).WithError(err).Warn("fetch failed")
		}
		if errors.Is(err, ErrNoData) {
			return backoff.Permanent(err)
		}
		return err
	}, retry)
	if err != nil {
		return nil, err
	}
	return bars, nil
}

func (c *Client) fetch(ctx context.Context, symbol, period, interval string) (bars []Bar, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	u := c.baseURL + url.PathEscape(symbol) + "?" + url.Values{
		"range":    {period},
		"interval": {interval},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	defer func() { metrics.RecordHTTPRequest("yahoo", time.Since(start), err) }()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", symbol, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("get %s: unexpected status %d", symbol, resp.StatusCode)
	}
	return parseChart(body)
}

func parseChart(body []byte) ([]Bar, error) {
	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode chart: %w", err))
	}
	if cr.Chart.Error != nil {
		return nil, fmt.Errorf("%s: %w", cr.Chart.Error.Description, ErrNoData)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrNoData
	}

	res := cr.Chart.Result[0]
	q := res.Indicators.Quote[0]
	bars := make([]Bar, 0, len(res.Timestamp))
	anyClose := false
	for i, ts := range res.Timestamp {
		b := Bar{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   at(q.Open, i),
			High:   at(q.High, i),
			Low:    at(q.Low, i),
			Close:  at(q.Close, i),
			Volume: int64(at(q.Volume, i)),
		}
		if i >= len(q.Close) || q.Close[i] == nil {
			b.Missing = true
		} else {
			anyClose = true
		}
		bars = append(bars, b)
	}
	if !anyClose {
		return nil, ErrNoData
	}
	return bars, nil
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}
