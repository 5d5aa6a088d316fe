package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quantgens/quantgens-server/internal/market"
)

// ToolUpdate is one state change produced while a tool executes. Terminal
// updates carry either a Payload (ready) or an Err (error).
type ToolUpdate struct {
	State   InvocationState
	Payload json.RawMessage
	Err     string
}

// Tool is an executable capability exposed to the model. Validate runs before
// Execute; a validation failure fails the invocation without executing it.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Validate    func(input json.RawMessage) error
	Execute     func(ctx context.Context, input json.RawMessage) <-chan ToolUpdate
}

// Registry holds the tool set in a stable order.
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
}

// NewRegistry creates a registry from the given tools.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{byName: make(map[string]*Tool)}
	for _, t := range tools {
		r.tools = append(r.tools, t)
		r.byName[t.Name] = t
	}
	return r
}

// Lookup returns the named tool, or nil.
func (r *Registry) Lookup(name string) *Tool {
	return r.byName[name]
}

// Definitions returns the tool set as model-facing function definitions.
func (r *Registry) Definitions() []openai.Tool {
	defs := make([]openai.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return defs
}

// QuoteSource supplies stock quotes to the tool set.
type QuoteSource interface {
	GetQuote(ctx context.Context, ticker string) *market.Quote
}

// NewsSource supplies news search results to the tool set.
type NewsSource interface {
	SearchNews(ctx context.Context, query string, limit int) []market.NewsArticle
}

// IndexSource supplies the major-index basket to the tool set.
type IndexSource interface {
	GetMarketIndices(ctx context.Context) []market.Index
}

// DefaultRegistry builds the standard tool set backed by the given sources.
func DefaultRegistry(quotes QuoteSource, news NewsSource, indices IndexSource) *Registry {
	return NewRegistry(
		stockDataTool(quotes),
		newsTool(news),
		marketOverviewTool(indices),
	)
}

type stockDataInput struct {
	Ticker string `json:"ticker"`
}

func stockDataTool(quotes QuoteSource) *Tool {
	return &Tool{
		Name:        "getStockData",
		Description: "Get the latest price, daily change and trading signal for a stock ticker symbol.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"ticker": {"type": "string", "description": "Stock ticker symbol, e.g. AAPL"}
			},
			"required": ["ticker"]
		}`),
		Validate: func(input json.RawMessage) error {
			var in stockDataInput
			if err := json.Unmarshal(input, &in); err != nil {
				return fmt.Errorf("invalid input: %w", err)
			}
			if strings.TrimSpace(in.Ticker) == "" {
				return fmt.Errorf("ticker is required")
			}
			return nil
		},
		Execute: func(ctx context.Context, input json.RawMessage) <-chan ToolUpdate {
			ch := make(chan ToolUpdate, 2)
			go func() {
				defer close(ch)
				var in stockDataInput
				json.Unmarshal(input, &in)
				ticker := strings.ToUpper(strings.TrimSpace(in.Ticker))

				ch <- ToolUpdate{State: StateLoading}

				quote := quotes.GetQuote(ctx, ticker)
				if quote == nil {
					ch <- ToolUpdate{State: StateError, Err: fmt.Sprintf("could not fetch data for %s", ticker)}
					return
				}

				action, confidence := market.Derive(*quote, market.ChatParams)
				payload, _ := json.Marshal(map[string]interface{}{
					"ticker":        quote.Ticker,
					"price":         quote.Price,
					"open":          quote.Open,
					"high":          quote.High,
					"low":           quote.Low,
					"volume":        quote.Volume,
					"change":        quote.Change,
					"changePercent": quote.ChangePercent,
					"signal":        action,
					"confidence":    int(confidence),
				})
				ch <- ToolUpdate{State: StateReady, Payload: payload}
			}()
			return ch
		},
	}
}

type newsInput struct {
	Query string `json:"query"`
}

func newsTool(news NewsSource) *Tool {
	return &Tool{
		Name:        "getNews",
		Description: "Search for recent news about a company, ticker or market topic.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Company name, ticker or topic to search news for"}
			},
			"required": ["query"]
		}`),
		Validate: func(input json.RawMessage) error {
			var in newsInput
			if err := json.Unmarshal(input, &in); err != nil {
				return fmt.Errorf("invalid input: %w", err)
			}
			if strings.TrimSpace(in.Query) == "" {
				return fmt.Errorf("query is required")
			}
			return nil
		},
		Execute: func(ctx context.Context, input json.RawMessage) <-chan ToolUpdate {
			ch := make(chan ToolUpdate, 2)
			go func() {
				defer close(ch)
				var in newsInput
				json.Unmarshal(input, &in)

				ch <- ToolUpdate{State: StateLoading}

				articles := news.SearchNews(ctx, in.Query, 5)
				payload, _ := json.Marshal(map[string]interface{}{
					"query":    in.Query,
					"articles": articles,
				})
				ch <- ToolUpdate{State: StateReady, Payload: payload}
			}()
			return ch
		},
	}
}

func marketOverviewTool(indices IndexSource) *Tool {
	return &Tool{
		Name:        "getMarketOverview",
		Description: "Get current levels and daily changes for the major US market indices.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
		Validate: func(input json.RawMessage) error {
			return nil
		},
		Execute: func(ctx context.Context, input json.RawMessage) <-chan ToolUpdate {
			ch := make(chan ToolUpdate, 2)
			go func() {
				defer close(ch)

				ch <- ToolUpdate{State: StateLoading}

				basket := indices.GetMarketIndices(ctx)
				if len(basket) == 0 {
					ch <- ToolUpdate{State: StateError, Err: "could not fetch market data"}
					return
				}
				payload, _ := json.Marshal(map[string]interface{}{
					"indices": basket,
				})
				ch <- ToolUpdate{State: StateReady, Payload: payload}
			}()
			return ch
		},
	}
}
