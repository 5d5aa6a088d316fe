package polygon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantgens/quantgens-server/internal/market"
)

// ============================================================================
// FAKE PROVIDER
// ============================================================================

// fakeProvider simulates the Polygon previous-close endpoint
type fakeProvider struct {
	server    *httptest.Server
	callCount int64
	fail      map[string]int // ticker -> status code to return
}

func newFakeProvider() *fakeProvider {
	p := &fakeProvider{fail: failures()}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

func failures() map[string]int {
	return make(map[string]int)
}

func (p *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&p.callCount, 1)

	// Path shape: /v2/aggs/ticker/{TICKER}/prev
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ticker := parts[4]

	if code, ok := p.fail[ticker]; ok {
		w.WriteHeader(code)
		return
	}

	if ticker == "BROKEN" {
		fmt.Fprint(w, `{"results": not-json`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"OK","results":[{"o":100.0,"h":104.2,"l":99.1,"c":103.5,"v":28000000,"T":%q}]}`, ticker)
}

func (p *fakeProvider) calls() int64 {
	return atomic.LoadInt64(&p.callCount)
}

func newTestClient(p *fakeProvider, ttl time.Duration) *Client {
	return NewClient(&Config{
		APIKey:       "test-key",
		BaseURL:      p.server.URL,
		CacheTTL:     ttl,
		RequestDelay: time.Millisecond,
		CallTimeout:  2 * time.Second,
	}, zerolog.Nop())
}

// ============================================================================
// QUOTE TESTS
// ============================================================================

// TestGetQuoteNormalization tests quote field derivation from the aggregate payload
func TestGetQuoteNormalization(t *testing.T) {
	p := newFakeProvider()
	defer p.server.Close()
	client := newTestClient(p, time.Minute)

	quote := client.GetQuote(context.Background(), "aapl")
	if quote == nil {
		t.Fatal("Expected quote, got nil")
	}

	if quote.Ticker != "AAPL" {
		t.Errorf("Expected uppercased ticker AAPL, got %s", quote.Ticker)
	}
	if quote.Change != 3.50 {
		t.Errorf("Expected change 3.50, got %f", quote.Change)
	}
	if quote.ChangePercent != 3.50 {
		t.Errorf("Expected changePercent 3.50, got %f", quote.ChangePercent)
	}

	action, confidence := market.Derive(*quote, market.ChatParams)
	if action != market.ActionBuy {
		t.Errorf("Expected BUY signal, got %s", action)
	}
	if confidence != 77.5 {
		t.Errorf("Expected confidence 77.5, got %f", confidence)
	}
}

// TestGetQuoteCacheIdempotence tests that lookups within the TTL hit upstream once
func TestGetQuoteCacheIdempotence(t *testing.T) {
	p := newFakeProvider()
	defer p.server.Close()
	client := newTestClient(p, time.Minute)

	first := client.GetQuote(context.Background(), "AAPL")
	second := client.GetQuote(context.Background(), "AAPL")

	if first == nil || second == nil {
		t.Fatal("Expected quotes, got nil")
	}
	if *first != *second {
		t.Errorf("Expected identical cached payloads, got %+v vs %+v", first, second)
	}
	if p.calls() != 1 {
		t.Errorf("Expected exactly 1 upstream call, got %d", p.calls())
	}
}

// TestGetQuoteCacheExpiry tests that a stale entry triggers one new upstream call
func TestGetQuoteCacheExpiry(t *testing.T) {
	p := newFakeProvider()
	defer p.server.Close()
	client := newTestClient(p, 20*time.Millisecond)

	client.GetQuote(context.Background(), "AAPL")
	time.Sleep(30 * time.Millisecond)
	client.GetQuote(context.Background(), "AAPL")

	if p.calls() != 2 {
		t.Errorf("Expected 2 upstream calls after expiry, got %d", p.calls())
	}
}

// TestGetQuoteNoAPIKey tests graceful degradation without a key
func TestGetQuoteNoAPIKey(t *testing.T) {
	p := newFakeProvider()
	defer p.server.Close()

	client := NewClient(&Config{BaseURL: p.server.URL, CacheTTL: time.Minute}, zerolog.Nop())

	if quote := client.GetQuote(context.Background(), "AAPL"); quote != nil {
		t.Errorf("Expected nil without API key, got %+v", quote)
	}
	if p.calls() != 0 {
		t.Errorf("Expected no upstream calls without API key, got %d", p.calls())
	}
}

// TestGetQuoteFailureModes tests that provider errors all collapse to nil
func TestGetQuoteFailureModes(t *testing.T) {
	p := newFakeProvider()
	defer p.server.Close()
	p.fail["RATED"] = http.StatusForbidden
	p.fail["DOWN"] = http.StatusInternalServerError

	client := newTestClient(p, time.Minute)

	cases := []string{"RATED", "DOWN", "BROKEN", ""}
	for _, ticker := range cases {
		if quote := client.GetQuote(context.Background(), ticker); quote != nil {
			t.Errorf("Expected nil for %q, got %+v", ticker, quote)
		}
	}
}

// ============================================================================
// MARKET INDICES TESTS
// ============================================================================

// TestGetMarketIndicesPartialFailure tests that one failed ticker does not empty the basket
func TestGetMarketIndicesPartialFailure(t *testing.T) {
	p := newFakeProvider()
	defer p.server.Close()
	p.fail["QQQ"] = http.StatusInternalServerError

	client := newTestClient(p, time.Minute)

	indices := client.GetMarketIndices(context.Background())
	if len(indices) != 3 {
		t.Fatalf("Expected 3 of 4 indices, got %d", len(indices))
	}

	for _, idx := range indices {
		if idx.Ticker == "QQQ" {
			t.Error("Failed ticker QQQ should not appear in basket result")
		}
		if idx.Name == "" {
			t.Errorf("Expected index name for %s", idx.Ticker)
		}
	}
}

// TestGetMarketIndicesOrder tests that the basket preserves its fixed order
func TestGetMarketIndicesOrder(t *testing.T) {
	p := newFakeProvider()
	defer p.server.Close()
	client := newTestClient(p, time.Minute)

	indices := client.GetMarketIndices(context.Background())
	want := []string{"SPY", "QQQ", "DIA", "IWM"}

	if len(indices) != len(want) {
		t.Fatalf("Expected %d indices, got %d", len(want), len(indices))
	}
	for i, ticker := range want {
		if indices[i].Ticker != ticker {
			t.Errorf("Position %d: expected %s, got %s", i, ticker, indices[i].Ticker)
		}
	}
}

// TestGetMarketIndicesTotalFailureNotCached tests that an empty basket is not cached
func TestGetMarketIndicesTotalFailureNotCached(t *testing.T) {
	p := newFakeProvider()
	defer p.server.Close()
	for _, ticker := range []string{"SPY", "QQQ", "DIA", "IWM"} {
		p.fail[ticker] = http.StatusInternalServerError
	}

	client := newTestClient(p, time.Minute)

	if indices := client.GetMarketIndices(context.Background()); len(indices) != 0 {
		t.Fatalf("Expected empty basket on total failure, got %d", len(indices))
	}

	// Provider recovers; the empty result must not have been cached
	p.fail = failures()

	if indices := client.GetMarketIndices(context.Background()); len(indices) != 4 {
		t.Errorf("Expected full basket after recovery, got %d", len(indices))
	}
}

// TestGetMarketIndicesCached tests that a second basket call is served from cache
func TestGetMarketIndicesCached(t *testing.T) {
	p := newFakeProvider()
	defer p.server.Close()
	client := newTestClient(p, time.Minute)

	client.GetMarketIndices(context.Background())
	callsAfterFirst := p.calls()
	client.GetMarketIndices(context.Background())

	if p.calls() != callsAfterFirst {
		t.Errorf("Expected no extra upstream calls for cached basket, got %d -> %d", callsAfterFirst, p.calls())
	}
}
