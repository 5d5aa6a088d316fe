package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/quantgens/quantgens-server/internal/llm"
)

const (
	// maxRounds caps model round trips per request. Tool calls issued on the
	// final round still execute, but no further model call follows them.
	maxRounds = 3

	// defaultCharBudget bounds streamed assistant text per request. Roughly
	// four characters per token, matching the provider-side token cap.
	defaultCharBudget = 4000
)

const systemPrompt = `You are a trading assistant for the Quantgens dashboard.
You help users understand stocks, market conditions and recent news.

Use the tools available to you to look up live data before answering:
- getStockData for prices, daily changes and trading signals
- getNews for recent news about a company or topic
- getMarketOverview for the major US indices

Be concise. Quote concrete numbers from tool results rather than guessing.
When a tool fails, say so plainly and answer with what you have. Never invent
prices. Remind users that signals are informational, not financial advice.`

// StreamEvent is one unit of orchestrator output, forwarded to the client as
// it is produced.
type StreamEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	Invocation *ToolInvocation `json:"invocation,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// Stream event types.
const (
	EventTextDelta = "text-delta"
	EventToolState = "tool-state"
	EventDone      = "done"
	EventError     = "error"
)

// Done reasons.
const (
	ReasonStop        = "stop"
	ReasonLength      = "length"
	ReasonRoundBudget = "round-budget"
)

// ModelClient abstracts the streaming LLM provider.
type ModelClient interface {
	StreamChat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (llm.Stream, error)
	IsConfigured() bool
}

// Orchestrator runs a conversation turn: it streams model output, executes
// tool calls between rounds and feeds results back until the model stops or
// the round budget runs out.
type Orchestrator struct {
	model      ModelClient
	registry   *Registry
	charBudget int
	logger     zerolog.Logger
}

// NewOrchestrator creates an orchestrator over the given model and tool set.
func NewOrchestrator(model ModelClient, registry *Registry, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		model:      model,
		registry:   registry,
		charBudget: defaultCharBudget,
		logger:     logger.With().Str("component", "chat").Logger(),
	}
}

// ErrInvalidConversation wraps history validation failures so the transport
// layer can map them to a client error.
var ErrInvalidConversation = errors.New("invalid conversation")

// Run executes one conversation turn, invoking emit for every stream event.
// It returns an error only for invalid input, provider failures or context
// cancellation; tool failures surface as error-state invocations instead.
func (o *Orchestrator) Run(ctx context.Context, conversation []Message, emit func(StreamEvent)) error {
	if err := ValidateConversation(conversation, o.registry); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConversation, err)
	}
	if !o.model.IsConfigured() {
		emit(StreamEvent{Type: EventError, Message: "chat model is not configured"})
		return fmt.Errorf("model client is not configured")
	}

	msgs := o.toModelMessages(conversation)
	defs := o.registry.Definitions()

	emitted := 0
	reason := ReasonStop

	for round := 1; round <= maxRounds; round++ {
		stream, err := o.model.StreamChat(ctx, msgs, defs)
		if err != nil {
			o.logger.Error().Err(err).Int("round", round).Msg("Model stream failed to open")
			emit(StreamEvent{Type: EventError, Message: "model provider unavailable"})
			return err
		}

		text, calls, finish, err := o.consume(ctx, stream, emit, &emitted)
		stream.Close()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			o.logger.Error().Err(err).Int("round", round).Msg("Model stream failed mid-read")
			emit(StreamEvent{Type: EventError, Message: "model stream interrupted"})
			return err
		}

		if len(calls) == 0 {
			if finish == openai.FinishReasonLength || emitted >= o.charBudget {
				reason = ReasonLength
			}
			break
		}

		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   text,
			ToolCalls: calls,
		})
		for _, call := range calls {
			content, err := o.runTool(ctx, call, emit)
			if err != nil {
				return err
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    string(content),
			})
		}

		if round == maxRounds {
			reason = ReasonRoundBudget
		}
	}

	emit(StreamEvent{Type: EventDone, Reason: reason})
	return nil
}

type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

// consume reads one model stream to completion, emitting text deltas and
// accumulating fragmented tool-call deltas by index.
func (o *Orchestrator) consume(ctx context.Context, stream llm.Stream, emit func(StreamEvent), emitted *int) (string, []openai.ToolCall, openai.FinishReason, error) {
	var text strings.Builder
	var finish openai.FinishReason
	builders := make(map[int]*toolCallBuilder)
	order := []int{}

	for {
		if err := ctx.Err(); err != nil {
			return "", nil, finish, err
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, finish, err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			delta := choice.Delta.Content
			if *emitted+len(delta) > o.charBudget {
				delta = delta[:o.charBudget-*emitted]
			}
			if delta != "" {
				text.WriteString(delta)
				*emitted += len(delta)
				emit(StreamEvent{Type: EventTextDelta, Delta: delta})
			}
			if *emitted >= o.charBudget {
				finish = openai.FinishReasonLength
				break
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			b, ok := builders[idx]
			if !ok {
				b = &toolCallBuilder{}
				builders[idx] = b
				order = append(order, idx)
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			b.args.WriteString(tc.Function.Arguments)
		}

		if choice.FinishReason != "" {
			finish = choice.FinishReason
		}
	}

	calls := make([]openai.ToolCall, 0, len(order))
	for _, idx := range order {
		b := builders[idx]
		args := b.args.String()
		if args == "" {
			args = "{}"
		}
		calls = append(calls, openai.ToolCall{
			ID:   b.id,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      b.name,
				Arguments: args,
			},
		})
	}
	return text.String(), calls, finish, nil
}

// runTool drives one invocation through its state machine and returns the
// content to feed back to the model. Validation failures and unknown tools
// fail the invocation without executing anything.
func (o *Orchestrator) runTool(ctx context.Context, call openai.ToolCall, emit func(StreamEvent)) (json.RawMessage, error) {
	inv := NewInvocation(call.ID, call.Function.Name, json.RawMessage(call.Function.Arguments))
	emit(StreamEvent{Type: EventToolState, Invocation: inv.snapshot()})

	fail := func(msg string) json.RawMessage {
		inv.transition(StateError)
		inv.Error = msg
		emit(StreamEvent{Type: EventToolState, Invocation: inv.snapshot()})
		payload, _ := json.Marshal(map[string]string{"error": msg})
		return payload
	}

	tool := o.registry.Lookup(inv.Tool)
	if tool == nil {
		return fail(fmt.Sprintf("unknown tool %q", inv.Tool)), nil
	}
	if err := tool.Validate(inv.Input); err != nil {
		o.logger.Warn().Err(err).Str("tool", inv.Tool).Msg("Rejected tool input")
		return fail(err.Error()), nil
	}

	updates := tool.Execute(ctx, inv.Input)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case u, ok := <-updates:
			if !ok {
				if !inv.State.Terminal() {
					return fail("tool produced no result"), nil
				}
				if inv.State == StateError {
					payload, _ := json.Marshal(map[string]string{"error": inv.Error})
					return payload, nil
				}
				return inv.Result, nil
			}
			if err := inv.transition(u.State); err != nil {
				o.logger.Warn().Err(err).Str("tool", inv.Tool).Msg("Dropped out-of-order tool update")
				continue
			}
			switch u.State {
			case StateReady:
				inv.Result = u.Payload
			case StateError:
				inv.Error = u.Err
			}
			emit(StreamEvent{Type: EventToolState, Invocation: inv.snapshot()})
		}
	}
}

// toModelMessages flattens the part-structured history into provider wire
// messages, replaying past tool calls and their results.
func (o *Orchestrator) toModelMessages(conversation []Message) []openai.ChatCompletionMessage {
	out := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	}}

	for _, m := range conversation {
		if m.Role == RoleUser {
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Text(),
			})
			continue
		}

		var toolCalls []openai.ToolCall
		var toolResults []openai.ChatCompletionMessage
		for _, p := range m.Parts {
			if p.Type != PartToolInvocation || p.Invocation == nil {
				continue
			}
			inv := p.Invocation
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   inv.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      inv.Tool,
					Arguments: string(inv.Input),
				},
			})
			content := inv.Result
			if inv.State == StateError {
				content, _ = json.Marshal(map[string]string{"error": inv.Error})
			}
			toolResults = append(toolResults, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: inv.ID,
				Content:    string(content),
			})
		}

		out = append(out, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   m.Text(),
			ToolCalls: toolCalls,
		})
		out = append(out, toolResults...)
	}
	return out
}
