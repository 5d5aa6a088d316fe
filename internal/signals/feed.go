// Package signals maintains the dashboard's watchlist signal feed: quotes for
// a fixed ticker set, thresholded into BUY/SELL/HOLD signals, cached and
// shared across replicas through Redis when available.
package signals

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantgens/quantgens-server/internal/cache"
	"github.com/quantgens/quantgens-server/internal/events"
	"github.com/quantgens/quantgens-server/internal/market"
)

// QuoteSource supplies quotes for the watchlist.
type QuoteSource interface {
	GetQuote(ctx context.Context, ticker string) *market.Quote
}

// Config holds feed configuration.
type Config struct {
	Watchlist    []string      `json:"watchlist"`
	CacheTTL     time.Duration `json:"cache_ttl"`
	RequestDelay time.Duration `json:"request_delay"`
}

// DefaultConfig returns default configuration. The watchlist is kept small to
// stay under the free-tier rate limit of the quote provider.
func DefaultConfig() *Config {
	return &Config{
		Watchlist:    []string{"AAPL", "TSLA", "NVDA", "MSFT"},
		CacheTTL:     3 * time.Minute,
		RequestDelay: 200 * time.Millisecond,
	}
}

// Result is one feed response: a signal batch plus provenance flags.
type Result struct {
	Signals []market.Signal `json:"signals"`
	Cached  bool            `json:"cached"`
	Mock    bool            `json:"mock,omitempty"`
}

const localKey = "signals:feed"

// Feed derives and caches watchlist signals.
type Feed struct {
	config *Config
	quotes QuoteSource
	store  *cache.TTLStore
	shared *cache.SharedCache
	bus    *events.EventBus
	logger zerolog.Logger
}

// NewFeed creates a feed over the given quote source. shared and bus are
// optional; a nil shared cache disables cross-replica sharing.
func NewFeed(config *Config, quotes QuoteSource, shared *cache.SharedCache, bus *events.EventBus, logger zerolog.Logger) *Feed {
	if config == nil {
		config = DefaultConfig()
	}
	return &Feed{
		config: config,
		quotes: quotes,
		store:  cache.NewTTLStore(config.CacheTTL, nil),
		shared: shared,
		bus:    bus,
		logger: logger.With().Str("component", "signals").Logger(),
	}
}

// Get returns the current signal batch. Fresh cached batches are served as-is;
// otherwise quotes are refetched, derived and re-cached. When no live quote
// can be fetched a fixed mock batch is returned and never cached.
func (f *Feed) Get(ctx context.Context) Result {
	if hit, ok := f.store.Get(localKey); ok {
		return Result{Signals: hit.([]market.Signal), Cached: true}
	}

	if batch, ok := f.sharedGet(ctx); ok {
		f.store.Set(localKey, batch)
		return Result{Signals: batch, Cached: true}
	}

	batch := f.refresh(ctx)
	if len(batch) == 0 {
		f.logger.Warn().Msg("No live quotes for watchlist, serving mock signals")
		return Result{Signals: MockSignals(), Mock: true}
	}

	f.store.Set(localKey, batch)
	f.sharedSet(ctx, batch)
	if f.bus != nil {
		f.bus.PublishSignalUpdate(batch, false)
	}
	return Result{Signals: batch, Cached: false}
}

// refresh fetches the watchlist sequentially, spacing requests to respect the
// provider rate limit. Tickers that fail are skipped.
func (f *Feed) refresh(ctx context.Context) []market.Signal {
	batch := make([]market.Signal, 0, len(f.config.Watchlist))

	for i, ticker := range f.config.Watchlist {
		if i > 0 && f.config.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return batch
			case <-time.After(f.config.RequestDelay):
			}
		}

		quote := f.quotes.GetQuote(ctx, ticker)
		if quote == nil {
			f.logger.Debug().Str("ticker", ticker).Msg("Skipping ticker without quote")
			continue
		}
		batch = append(batch, market.SignalFromQuote(*quote, market.FeedParams))
	}

	sort.Slice(batch, func(i, j int) bool {
		a, b := batch[i].ChangePercent, batch[j].ChangePercent
		if a < 0 {
			a = -a
		}
		if b < 0 {
			b = -b
		}
		return a > b
	})
	return batch
}

func (f *Feed) sharedGet(ctx context.Context) ([]market.Signal, bool) {
	if f.shared == nil || !f.shared.IsHealthy() {
		return nil, false
	}
	var batch []market.Signal
	if err := f.shared.GetJSON(ctx, cache.KeySignalsFeed, &batch); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			f.logger.Warn().Err(err).Msg("Shared cache read failed")
		}
		return nil, false
	}
	if len(batch) == 0 {
		return nil, false
	}
	return batch, true
}

func (f *Feed) sharedSet(ctx context.Context, batch []market.Signal) {
	if f.shared == nil || !f.shared.IsHealthy() {
		return
	}
	if err := f.shared.SetJSON(ctx, cache.KeySignalsFeed, batch, f.config.CacheTTL); err != nil {
		f.logger.Warn().Err(err).Msg("Shared cache write failed")
	}
}

// CacheStats exposes local cache hit/miss counters.
func (f *Feed) CacheStats() (hits, misses int64, hitRate float64) {
	return f.store.Stats()
}

// MockSignals is the fixed fallback batch served when no live data is
// available.
func MockSignals() []market.Signal {
	return []market.Signal{
		{ID: "NVDA", Symbol: "NVDA", Action: market.ActionBuy, Price: 142.5, Change: 5.2, ChangePercent: 3.78, Confidence: 87, Timestamp: "10:30 AM", Volume: 45000000},
		{ID: "TSLA", Symbol: "TSLA", Action: market.ActionSell, Price: 248.3, Change: -8.4, ChangePercent: -3.27, Confidence: 72, Timestamp: "10:28 AM", Volume: 32000000},
		{ID: "AAPL", Symbol: "AAPL", Action: market.ActionHold, Price: 195.2, Change: 0.85, ChangePercent: 0.44, Confidence: 58, Timestamp: "10:25 AM", Volume: 28000000},
		{ID: "MSFT", Symbol: "MSFT", Action: market.ActionBuy, Price: 425.8, Change: 12.3, ChangePercent: 2.97, Confidence: 81, Timestamp: "10:22 AM", Volume: 18000000},
	}
}
