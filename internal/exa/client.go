// Package exa wraps the Exa.ai search API for news lookups. Failures never
// surface to callers: when the provider is unreachable or no key is
// configured, a small fixed list of search-engine deep links is returned so
// the dashboard always has something actionable to render.
package exa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/quantgens/quantgens-server/internal/cache"
	"github.com/quantgens/quantgens-server/internal/market"
)

// Config holds Exa client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	CacheTTL    time.Duration
	CallTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the news cache.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://api.exa.ai",
		CacheTTL:    5 * time.Minute,
		CallTimeout: 10 * time.Second,
	}
}

// Client is the Exa API client.
type Client struct {
	config *Config
	http   *resty.Client
	store  *cache.TTLStore
	logger zerolog.Logger
}

// NewClient creates a new Exa client.
func NewClient(config *Config, logger zerolog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.exa.ai"
	}

	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.CallTimeout).
		SetHeader("Content-Type", "application/json").
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

// CacheStats returns the news cache hit/miss statistics.
func (c *Client) CacheStats() (hits, misses int64, hitRate float64) {
	return c.store.Stats()
}

// searchRequest is the Exa /search request body.
type searchRequest struct {
	Query         string `json:"query"`
	Type          string `json:"type"`
	NumResults    int    `json:"numResults"`
	Text          bool   `json:"text"`
	UseAutoprompt bool   `json:"useAutoprompt"`
}

// searchResponse is the Exa /search response shape.
type searchResponse struct {
	Results []struct {
		ID            string `json:"id"`
		Title         string `json:"title"`
		URL           string `json:"url"`
		Text          string `json:"text"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`
	Error string `json:"error"`
}

// SearchNews returns up to limit normalized articles for a free-text query.
// Results are cached by lowercased query. The returned slice is never empty:
// provider failure or a missing key yields the fixed fallback list.
func (c *Client) SearchNews(ctx context.Context, query string, limit int) []market.NewsArticle {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	cacheKey := "news:" + strings.ToLower(query)
	if cached, ok := c.store.Get(cacheKey); ok {
		articles := cached.([]market.NewsArticle)
		if len(articles) > limit {
			return articles[:limit]
		}
		return articles
	}

	if !c.IsConfigured() {
		c.logger.Error().Msg("exa API key not configured")
		return FallbackNews(query)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.config.APIKey).
		SetBody(searchRequest{
			Query:         query + " latest news",
			Type:          "keyword",
			NumResults:    limit,
			Text:          true,
			UseAutoprompt: false,
		}).
		Post("/search")
	if err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("exa fetch failed")
		return FallbackNews(query)
	}
	if !resp.IsSuccess() {
		c.logger.Warn().Int("status", resp.StatusCode()).Str("query", query).Msg("exa API error")
		return FallbackNews(query)
	}

	var data searchResponse
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("exa malformed payload")
		return FallbackNews(query)
	}
	if len(data.Results) == 0 {
		return FallbackNews(query)
	}

	articles := make([]market.NewsArticle, 0, len(data.Results))
	for i, r := range data.Results {
		if i >= limit {
			break
		}
		articles = append(articles, normalizeArticle(r.ID, r.Title, r.URL, r.Text, r.PublishedDate, i))
	}

	c.store.Set(cacheKey, articles)
	return articles
}

// GetCompanyResearch searches for financial analysis about a company.
func (c *Client) GetCompanyResearch(ctx context.Context, company string) []market.NewsArticle {
	return c.SearchNews(ctx, company+" financial analysis earnings report", 5)
}

func normalizeArticle(id, title, rawURL, text, publishedDate string, idx int) market.NewsArticle {
	if id == "" {
		id = fmt.Sprintf("exa-%d", idx)
	}
	if title == "" {
		title = "Untitled"
	}

	snippet := text
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	if snippet == "" {
		snippet = "No preview available"
	}

	source := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		source = strings.TrimPrefix(parsed.Hostname(), "www.")
	}

	publishedAt := time.Now()
	if publishedDate != "" {
		if parsed, err := time.Parse(time.RFC3339, publishedDate); err == nil {
			publishedAt = parsed
		}
	}

	return market.NewsArticle{
		ID:          id,
		Title:       title,
		URL:         rawURL,
		Snippet:     snippet,
		Source:      source,
		PublishedAt: publishedAt,
	}
}

// FallbackNews returns the fixed deep-link list rendered when the provider
// cannot be reached.
func FallbackNews(query string) []market.NewsArticle {
	escaped := url.QueryEscape(query)

	return []market.NewsArticle{
		{
			ID:          "fallback-google",
			Title:       fmt.Sprintf("Search %q on Google News", query),
			URL:         "https://www.google.com/search?q=" + url.QueryEscape(query+" stock news") + "&tbm=nws",
			Snippet:     fmt.Sprintf("Click to search for the latest %s news on Google News.", query),
			Source:      "google.com",
			PublishedAt: time.Now(),
		},
		{
			ID:          "fallback-yahoo",
			Title:       fmt.Sprintf("Search %q on Yahoo Finance", query),
			URL:         "https://finance.yahoo.com/quote/" + escaped,
			Snippet:     fmt.Sprintf("View %s stock information and news on Yahoo Finance.", query),
			Source:      "yahoo.com",
			PublishedAt: time.Now(),
		},
	}
}
