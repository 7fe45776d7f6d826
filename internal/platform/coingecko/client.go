// Package coingecko is a client for the CoinGecko simple-price API, the
// upstream source for SOL/USD conversion.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client queries CoinGecko's public REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new CoinGecko client. baseURL is the API root, e.g.
// "https://api.coingecko.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SimplePrice returns the USD price of the given CoinGecko asset ID (e.g.
// "solana"). The price is decoded from the raw JSON number so no float
// precision is lost.
func (c *Client) SimplePrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", assetID)
	q.Set("vs_currencies", "usd")

	reqURL := c.baseURL + "/api/v3/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("coingecko: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]map[string]json.Number
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: decode response: %w", err)
	}

	usd, ok := result[assetID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko: no usd price for %q in response", assetID)
	}

	price, err := decimal.NewFromString(usd.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: parse price %q: %w", usd.String(), err)
	}
	if price.IsZero() || price.IsNegative() {
		return decimal.Zero, fmt.Errorf("coingecko: non-positive price %s for %q", price, assetID)
	}
	return price, nil
}
