// Package oracle is the HTTP client for the commodity price feed used to
// resolve markets.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxResponse    = 1 << 20
	userAgent      = "marketd-oracle/1"
)

// Client fetches quotes from the price feed REST API:
//
//	GET {base}/v1/prices/{COMMODITY}
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
}

var _ domain.PriceOracle = (*Client)(nil)

// NewClient returns a feed client rooted at baseURL, e.g.
// "https://prices.example.com". A malformed baseURL surfaces on the first
// call.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base, _ := url.Parse(strings.TrimRight(baseURL, "/"))
	return &Client{base: base, apiKey: apiKey, http: &http.Client{Timeout: timeout}}
}

func (c *Client) GetPrice(ctx context.Context, commodity domain.Commodity) (domain.PriceQuote, error) {
	var feed APIPriceFeed
	if err := c.get(ctx, "v1/prices/"+url.PathEscape(string(commodity)), &feed); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: price %s: %w", commodity, err)
	}
	q, err := feed.ToDomainQuote(commodity)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: price %s: %w", commodity, err)
	}
	return q, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.base == nil || c.base.Host == "" {
		return fmt.Errorf("%w: no feed base url configured", domain.ErrOracleUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath(path).String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponse)
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return statusError(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// statusError classifies a non-2xx feed response. 5xx counts as the feed
// being unavailable so the resolver retries it with backoff.
func statusError(status int, body string) error {
	var sentinel error
	switch {
	case status == http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	case status >= 500:
		sentinel = domain.ErrOracleUnavailable
	default:
		return fmt.Errorf("feed returned %d: %s", status, body)
	}
	return fmt.Errorf("%w: feed returned %d: %s", sentinel, status, body)
}
