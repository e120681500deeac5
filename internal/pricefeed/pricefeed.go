// Package pricefeed fetches current prices for mark-to-market valuation
// of open lots. The feed is a collaborator of the engine, never invoked
// inside the matching loop; an unavailable price is reported as zero,
// never as a fatal error.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/metrics"
)

// DefaultBaseURL is the Financial Modeling Prep quote endpoint root.
const DefaultBaseURL = "https://financialmodelingprep.com/api/v3"

// Client fetches quotes over HTTP. API call counts are reported through
// the injected metrics handle.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	metrics    *metrics.Metrics
}

// NewClient creates a price feed client. baseURL falls back to
// DefaultBaseURL when empty.
func NewClient(baseURL, apiKey string, m *metrics.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		metrics:    m,
	}
}

// quote is one entry of the provider's quote response.
type quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Quote returns the current price for an asset symbol. Export symbols
// carry a trailing "T" (e.g. WIFUSDT → WIFUSD) that the provider does
// not use. Any failure yields a zero price.
func (c *Client) Quote(ctx context.Context, symbol string) decimal.Decimal {
	provider := strings.TrimSuffix(symbol, "T")

	url := fmt.Sprintf("%s/quote/%s?apikey=%s", c.baseURL, provider, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.count("error")
		return decimal.Zero
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("price feed request failed", "symbol", symbol, "err", err)
		c.count("error")
		return decimal.Zero
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("price feed returned non-OK status", "symbol", symbol, "status", resp.StatusCode)
		c.count("error")
		return decimal.Zero
	}

	var quotes []quote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil || len(quotes) == 0 {
		c.count("empty")
		return decimal.Zero
	}

	c.count("ok")
	return quotes[0].Price
}

func (c *Client) count(result string) {
	if c.metrics != nil {
		c.metrics.PriceFeedCalls.WithLabelValues(result).Inc()
	}
}
