// Package llm provides the OpenRouter chat-completions client used by the
// chat orchestrator. OpenRouter speaks the OpenAI wire protocol, so the
// client is a thin wrapper over go-openai pointed at the OpenRouter base URL.
package llm

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Config holds LLM client configuration.
type Config struct {
	APIKey      string        `json:"api_key"`
	BaseURL     string        `json:"base_url"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://openrouter.ai/api/v1",
		Model:       "google/gemini-2.0-flash-001",
		MaxTokens:   1000,
		Temperature: 0.3,
		Timeout:     30 * time.Second,
	}
}

// Stream is one live chat-completions stream. *openai.ChatCompletionStream
// satisfies it; tests substitute scripted fakes.
type Stream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// Client is the OpenRouter API client.
type Client struct {
	config *Config
	api    *openai.Client
}

// NewClient creates a new OpenRouter client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		apiConfig.BaseURL = config.BaseURL
	}

	return &Client{
		config: config,
		api:    openai.NewClientWithConfig(apiConfig),
	}
}

// StreamChat opens a streaming completion with the given history and tool
// definitions. The stream is bounded by the configured output token budget;
// lifetime is controlled by ctx.
func (c *Client) StreamChat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Stream:      true,
	}

	return c.api.CreateChatCompletionStream(ctx, req)
}

// MaxTokens returns the per-request output budget.
func (c *Client) MaxTokens() int {
	return c.config.MaxTokens
}

// IsConfigured checks if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}
