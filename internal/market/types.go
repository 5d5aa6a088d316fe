// Package market defines the normalized market-data types shared by the
// data providers, the signal engine, and the API layer.
package market

import (
	"math"
	"time"
)

// Quote is a single normalized price/volume snapshot for a ticker.
// It is immutable once built; a re-fetch produces a new value.
type Quote struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewQuote normalizes raw OHLCV values into a Quote. Change and change
// percent are derived here and rounded to 2 decimals; downstream consumers
// must not re-round with a different precision.
func NewQuote(ticker string, open, high, low, close, volume float64, at time.Time) Quote {
	change := close - open
	changePercent := 0.0
	if open != 0 {
		changePercent = change / open * 100
	}

	return Quote{
		Ticker:        ticker,
		Price:         close,
		Open:          open,
		High:          high,
		Low:           low,
		Close:         close,
		Volume:        volume,
		Change:        Round2(change),
		ChangePercent: Round2(changePercent),
		Timestamp:     at,
	}
}

// Index is a named index quote for the market overview basket.
type Index struct {
	Ticker        string  `json:"ticker"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// NewsArticle is a normalized news search result.
type NewsArticle struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Snippet     string    `json:"snippet"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Round2 rounds a value to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
