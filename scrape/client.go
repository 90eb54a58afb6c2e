// Package scrape fetches exchange report pages and turns their HTML tables
// into typed or structured rows.
package scrape

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/viktsys/twmarket/config"
	"github.com/viktsys/twmarket/metrics"
)

// Client is a paced HTTP client for exchange websites.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	source    string
	log       *logrus.Entry
}

// NewClient builds a client; source labels its metrics and log lines.
func NewClient(cfg config.HTTPConfig, source string, log *logrus.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: cfg.UserAgent,
		source:    source,
		log:       log.WithFields(logrus.Fields{"component": "scrape", "source": source}),
	}
}

// Get fetches rawURL and returns the body decoded to UTF-8.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

// PostForm submits form to rawURL. Extra headers are added as given.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (body []byte, err error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter %s: %w", c.source, err)
	}

	start := time.Now()
	defer func() { metrics.RecordHTTPRequest(c.source, time.Since(start), err) }()

	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL, resp.StatusCode)
	}

	c.log.WithFields(logrus.Fields{
		"url":    req.URL.String(),
		"status": resp.StatusCode,
		"bytes":  len(raw),
		"took":   time.Since(start).Round(time.Millisecond),
	}).Debug("fetched")

	return decodeBody(raw, resp.Header.Get("Content-Type"))
}

// decodeBody converts Big5 pages to UTF-8; anything else passes through.
func decodeBody(raw []byte, contentType string) ([]byte, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return raw, nil
	}
	switch strings.ToLower(params["charset"]) {
	case "big5", "ms950", "cp950", "x-big5":
		out, _, err := transform.Bytes(traditionalchinese.Big5.NewDecoder(), raw)
		if err != nil {
			return nil, fmt.Errorf("decode big5: %w", err)
		}
		return out, nil
	}
	return raw, nil
}
