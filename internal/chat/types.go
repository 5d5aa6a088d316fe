// Package chat implements the tool-augmented conversation orchestrator.
// Messages are composed of ordered parts (text and tool invocations) so the
// frontend can render partial assistant output while tools are still running.
package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType identifies the kind of a message part.
type PartType string

const (
	PartText           PartType = "text"
	PartToolInvocation PartType = "tool-invocation"
)

// InvocationState is the lifecycle state of a tool invocation.
type InvocationState string

const (
	StatePending InvocationState = "pending"
	StateLoading InvocationState = "loading"
	StateReady   InvocationState = "ready"
	StateError   InvocationState = "error"
)

// Terminal reports whether the state admits no further transitions.
func (s InvocationState) Terminal() bool {
	return s == StateReady || s == StateError
}

// ToolInvocation is a single tool call embedded in an assistant message.
// State moves forward only: pending -> loading -> ready|error. Result is
// populated on ready, Error on error.
type ToolInvocation struct {
	ID     string          `json:"id"`
	Tool   string          `json:"tool"`
	Input  json.RawMessage `json:"input"`
	State  InvocationState `json:"state"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewInvocation creates a pending invocation for a model-issued tool call.
func NewInvocation(id, tool string, input json.RawMessage) *ToolInvocation {
	if id == "" {
		id = uuid.New().String()
	}
	return &ToolInvocation{
		ID:    id,
		Tool:  tool,
		Input: input,
		State: StatePending,
	}
}

// transition advances the invocation state. Backward moves and transitions
// out of a terminal state are rejected.
func (inv *ToolInvocation) transition(next InvocationState) error {
	if inv.State.Terminal() {
		return fmt.Errorf("invocation %s is already %s", inv.ID, inv.State)
	}
	switch {
	case inv.State == StatePending && next == StateLoading:
	case inv.State == StatePending && next == StateError:
	case inv.State == StateLoading && next == StateReady:
	case inv.State == StateLoading && next == StateError:
	default:
		return fmt.Errorf("invocation %s: invalid transition %s -> %s", inv.ID, inv.State, next)
	}
	inv.State = next
	return nil
}

// snapshot returns a copy safe to hand to an emit callback.
func (inv *ToolInvocation) snapshot() *ToolInvocation {
	cp := *inv
	return &cp
}

// Part is one ordered segment of a message.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	Invocation *ToolInvocation `json:"invocation,omitempty"`
}

// Message is a single conversation entry.
type Message struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ValidateConversation checks a client-supplied history before any model or
// tool work starts. Invocations carried in history must reference known tools
// and be in a terminal state.
func ValidateConversation(conversation []Message, registry *Registry) error {
	if len(conversation) == 0 {
		return fmt.Errorf("conversation is empty")
	}
	for i, m := range conversation {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		if len(m.Parts) == 0 {
			return fmt.Errorf("message %d: no parts", i)
		}
		for j, p := range m.Parts {
			switch p.Type {
			case PartText:
			case PartToolInvocation:
				if m.Role != RoleAssistant {
					return fmt.Errorf("message %d part %d: tool invocation on %s message", i, j, m.Role)
				}
				inv := p.Invocation
				if inv == nil {
					return fmt.Errorf("message %d part %d: missing invocation", i, j)
				}
				if registry != nil && registry.Lookup(inv.Tool) == nil {
					return fmt.Errorf("message %d part %d: unknown tool %q", i, j, inv.Tool)
				}
				if !inv.State.Terminal() {
					return fmt.Errorf("message %d part %d: invocation %s still %s", i, j, inv.ID, inv.State)
				}
			default:
				return fmt.Errorf("message %d part %d: unknown part type %q", i, j, p.Type)
			}
		}
	}
	last := conversation[len(conversation)-1]
	if last.Role != RoleUser {
		return fmt.Errorf("last message must be from the user")
	}
	return nil
}
