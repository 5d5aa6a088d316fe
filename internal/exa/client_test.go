package exa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeExa simulates the Exa /search endpoint
type fakeExa struct {
	server    *httptest.Server
	callCount int64
	status    int
	results   int
}

func newFakeExa(status, results int) *fakeExa {
	f := &fakeExa{status: status, results: results}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.callCount, 1)

		if r.Header.Get("x-api-key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.status != http.StatusOK {
			w.WriteHeader(f.status)
			return
		}

		var body struct {
			Query      string `json:"query"`
			NumResults int    `json:"numResults"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		type result struct {
			ID            string `json:"id"`
			Title         string `json:"title"`
			URL           string `json:"url"`
			Text          string `json:"text"`
			PublishedDate string `json:"publishedDate"`
		}
		out := struct {
			Results []result `json:"results"`
		}{}
		for i := 0; i < f.results; i++ {
			out.Results = append(out.Results, result{
				ID:            fmt.Sprintf("doc-%d", i),
				Title:         fmt.Sprintf("Article %d", i),
				URL:           "https://www.example.com/story",
				Text:          strings.Repeat("x", 300),
				PublishedDate: "2025-06-02T14:00:00Z",
			})
		}
		json.NewEncoder(w).Encode(out)
	}))
	return f
}

func newTestExaClient(f *fakeExa, apiKey string) *Client {
	return NewClient(&Config{
		APIKey:      apiKey,
		BaseURL:     f.server.URL,
		CacheTTL:    time.Minute,
		CallTimeout: 2 * time.Second,
	}, zerolog.Nop())
}

// TestSearchNewsNormalization tests article normalization from the provider payload
func TestSearchNewsNormalization(t *testing.T) {
	f := newFakeExa(http.StatusOK, 3)
	defer f.server.Close()
	client := newTestExaClient(f, "test-key")

	articles := client.SearchNews(context.Background(), "AAPL", 5)
	if len(articles) != 3 {
		t.Fatalf("Expected 3 articles, got %d", len(articles))
	}

	a := articles[0]
	if a.Source != "example.com" {
		t.Errorf("Expected source example.com (www stripped), got %s", a.Source)
	}
	if len(a.Snippet) != 200 {
		t.Errorf("Expected snippet truncated to 200 chars, got %d", len(a.Snippet))
	}
	if a.PublishedAt.IsZero() {
		t.Error("Expected parsed publish time")
	}
}

// TestSearchNewsLimit tests that results are capped at the requested count
func TestSearchNewsLimit(t *testing.T) {
	f := newFakeExa(http.StatusOK, 5)
	defer f.server.Close()
	client := newTestExaClient(f, "test-key")

	articles := client.SearchNews(context.Background(), "markets", 2)
	if len(articles) != 2 {
		t.Errorf("Expected 2 articles, got %d", len(articles))
	}
}

// TestSearchNewsCached tests that repeat queries within the TTL hit upstream once
func TestSearchNewsCached(t *testing.T) {
	f := newFakeExa(http.StatusOK, 2)
	defer f.server.Close()
	client := newTestExaClient(f, "test-key")

	client.SearchNews(context.Background(), "TSLA", 5)
	client.SearchNews(context.Background(), "tsla", 5) // case-insensitive key

	if atomic.LoadInt64(&f.callCount) != 1 {
		t.Errorf("Expected exactly 1 upstream call, got %d", f.callCount)
	}
}

// TestSearchNewsFallbackNoKey tests the fixed fallback list without an API key
func TestSearchNewsFallbackNoKey(t *testing.T) {
	f := newFakeExa(http.StatusOK, 5)
	defer f.server.Close()
	client := newTestExaClient(f, "")

	articles := client.SearchNews(context.Background(), "AAPL", 5)
	if len(articles) != 2 {
		t.Fatalf("Expected 2 fallback entries, got %d", len(articles))
	}

	for _, a := range articles {
		if !strings.Contains(a.URL, "AAPL") {
			t.Errorf("Expected deep link containing the query, got %s", a.URL)
		}
	}
	if atomic.LoadInt64(&f.callCount) != 0 {
		t.Errorf("Expected no upstream calls without API key, got %d", f.callCount)
	}
}

// TestSearchNewsFallbackOnProviderError tests fallback on non-2xx responses
func TestSearchNewsFallbackOnProviderError(t *testing.T) {
	f := newFakeExa(http.StatusTooManyRequests, 0)
	defer f.server.Close()
	client := newTestExaClient(f, "test-key")

	articles := client.SearchNews(context.Background(), "NVDA earnings", 5)
	if len(articles) != 2 {
		t.Fatalf("Expected fallback list on provider error, got %d articles", len(articles))
	}
	if articles[0].ID != "fallback-google" || articles[1].ID != "fallback-yahoo" {
		t.Errorf("Unexpected fallback entries: %s, %s", articles[0].ID, articles[1].ID)
	}
}

// TestSearchNewsEmptyResults tests fallback when the provider returns nothing
func TestSearchNewsEmptyResults(t *testing.T) {
	f := newFakeExa(http.StatusOK, 0)
	defer f.server.Close()
	client := newTestExaClient(f, "test-key")

	articles := client.SearchNews(context.Background(), "obscure topic", 5)
	if len(articles) != 2 {
		t.Errorf("Expected fallback list for empty results, got %d", len(articles))
	}
}

// TestSearchNewsEmptyQuery tests that a blank query returns nothing
func TestSearchNewsEmptyQuery(t *testing.T) {
	f := newFakeExa(http.StatusOK, 5)
	defer f.server.Close()
	client := newTestExaClient(f, "test-key")

	if articles := client.SearchNews(context.Background(), "   ", 5); articles != nil {
		t.Errorf("Expected nil for blank query, got %d articles", len(articles))
	}
}
