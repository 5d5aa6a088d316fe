// Package polygon wraps the Polygon.io REST API behind a cached,
// rate-limit-aware client. Free tier allows 5 API calls per minute, so
// every lookup goes through a short-lived cache and basket fetches are
// spaced out.
//
// All lookups degrade to nil/empty on failure; callers treat "no data" and
// "provider error" identically.
package polygon

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/quantgens/quantgens-server/internal/cache"
	"github.com/quantgens/quantgens-server/internal/market"
)

// Config holds Polygon client configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	CacheTTL     time.Duration
	RequestDelay time.Duration // spacing between basket calls
	CallTimeout  time.Duration // per-call ceiling for basket fetches
}

// DefaultConfig returns the free-tier defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api.polygon.io",
		CacheTTL:     3 * time.Minute,
		RequestDelay: 250 * time.Millisecond,
		CallTimeout:  8 * time.Second,
	}
}

// Client is the Polygon API client.
type Client struct {
	config *Config
	http   *resty.Client
	store  *cache.TTLStore
	logger zerolog.Logger
}

// NewClient creates a new Polygon client.
func NewClient(config *Config, logger zerolog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.polygon.io"
	}

	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetHeader("Accept", "application/json")

	return &Client{
		config: config,
		http:   httpClient,
		store:  cache.NewTTLStore(config.CacheTTL, nil),
		logger: logger,
	}
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// CacheStats returns the quote cache hit/miss statistics.
func (c *Client) CacheStats() (hits, misses int64, hitRate float64) {
	return c.store.Stats()
}

// aggResponse is the previous-close aggregate response shape.
type aggResponse struct {
	Results []struct {
		Close  float64 `json:"c"`
		Open   float64 `json:"o"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Volume float64 `json:"v"`
	} `json:"results"`
	Status string `json:"status"`
}

// GetQuote returns the normalized previous-close quote for a ticker, or nil
// when no data is available for any reason (missing key, HTTP error, rate
// limit, malformed payload). Results are cached by uppercased ticker.
func (c *Client) GetQuote(ctx context.Context, ticker string) *market.Quote {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil
	}

	cacheKey := "stock:" + ticker
	if cached, ok := c.store.Get(cacheKey); ok {
		quote := cached.(market.Quote)
		return &quote
	}

	if !c.IsConfigured() {
		c.logger.Error().Msg("polygon API key not configured")
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("adjusted", "true").
		SetQueryParam("apiKey", c.config.APIKey).
		Get("/v2/aggs/ticker/" + ticker + "/prev")
	if err != nil {
		c.logger.Warn().Err(err).Str("ticker", ticker).Msg("polygon fetch failed")
		return nil
	}

	if resp.StatusCode() == http.StatusForbidden {
		c.logger.Warn().Str("ticker", ticker).Msg("polygon rate limited or unauthorized")
		return nil
	}
	if !resp.IsSuccess() {
		c.logger.Warn().Int("status", resp.StatusCode()).Str("ticker", ticker).Msg("polygon API error")
		return nil
	}

	var data aggResponse
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		c.logger.Warn().Err(err).Str("ticker", ticker).Msg("polygon malformed payload")
		return nil
	}
	if len(data.Results) == 0 {
		return nil
	}

	r := data.Results[0]
	quote := market.NewQuote(ticker, r.Open, r.High, r.Low, r.Close, r.Volume, time.Now())

	c.store.Set(cacheKey, quote)
	return &quote
}

// indexBasket is the fixed basket served by the market overview, in render
// order.
var indexBasket = []struct {
	Ticker string
	Name   string
}{
	{"SPY", "S&P 500"},
	{"QQQ", "Nasdaq 100"},
	{"DIA", "Dow Jones"},
	{"IWM", "Russell 2000"},
}

// GetMarketIndices returns quotes for the fixed index basket, fetched
// sequentially with a fixed inter-request delay. Partial failures are
// tolerated: the result contains whichever tickers succeeded, and an empty
// list signals total failure. A timed-out call fails that one ticker only.
func (c *Client) GetMarketIndices(ctx context.Context) []market.Index {
	cacheKey := "market:indices"
	if cached, ok := c.store.Get(cacheKey); ok {
		return cached.([]market.Index)
	}

	indices := make([]market.Index, 0, len(indexBasket))

	for i, entry := range indexBasket {
		callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		quote := c.GetQuote(callCtx, entry.Ticker)
		cancel()

		if quote != nil {
			indices = append(indices, market.Index{
				Ticker:        entry.Ticker,
				Name:          entry.Name,
				Price:         quote.Price,
				Change:        quote.Change,
				ChangePercent: quote.ChangePercent,
			})
		}

		if i == len(indexBasket)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return indices
		case <-time.After(c.config.RequestDelay):
		}
	}

	if len(indices) > 0 {
		c.store.Set(cacheKey, indices)
	}

	return indices
}

// TickerMatch is a ticker search result.
type TickerMatch struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// tickerResponse is the reference ticker search response shape.
type tickerResponse struct {
	Results []struct {
		Ticker string `json:"ticker"`
		Name   string `json:"name"`
	} `json:"results"`
}

// SearchTickers looks up active tickers matching a free-text query.
func (c *Client) SearchTickers(ctx context.Context, query string) []TickerMatch {
	if !c.IsConfigured() || strings.TrimSpace(query) == "" {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("search", query).
		SetQueryParam("active", "true").
		SetQueryParam("limit", "10").
		SetQueryParam("apiKey", c.config.APIKey).
		Get("/v3/reference/tickers")
	if err != nil || !resp.IsSuccess() {
		c.logger.Warn().Str("query", query).Msg("polygon ticker search failed")
		return nil
	}

	var data tickerResponse
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil
	}

	matches := make([]TickerMatch, 0, len(data.Results))
	for _, r := range data.Results {
		matches = append(matches, TickerMatch{Ticker: r.Ticker, Name: r.Name})
	}
	return matches
}
