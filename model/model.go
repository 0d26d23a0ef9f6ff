package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function call request surfaced by a model provider.
// Arguments holds the raw JSON object string produced by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Args decodes Arguments. An empty string yields an empty map.
func (tc ToolCall) Args() (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(tc.Arguments) == "" {
		return args, nil
	}

	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("tool call %s: invalid arguments: %w", tc.Name, err)
	}

	if args == nil {
		args = map[string]any{}
	}

	return args, nil
}

// ToolDefinition exposes a callable capability to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Message is one entry of the handler-local transcript.
//
// Assistant messages may carry ToolCalls; tool messages answer exactly one
// call identified by ToolCallID and Name.
type Message struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// UserMessage creates a user message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Text: text} }

// AssistantMessage creates an assistant message.
func AssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

// ToolMessage creates a tool result message.
func ToolMessage(callID, name, output string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Text: output}
}

// Request captures the normalized model input. Agent names the handler
// issuing the request; providers ignore it but mocks use it for scripting.
type Request struct {
	Agent        string           `json:"agent"`
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// LastUserText returns the text of the most recent user message.
func (r Request) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Text
		}
	}
	return ""
}

// HasTool reports whether a tool named name is offered.
func (r Request) HasTool(name string) bool {
	for _, t := range r.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Exactly one
// non-partial response carries the complete assistant message.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Message      Message     `json:"message"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call and returns the final assistant message.
// Partial responses are discarded.
func Collect(ctx context.Context, m Model, req Request) (Message, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final Message
		found bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				continue
			}
			final = resp.Message
			found = true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Message{}, err
			}
		}
	}

	if !found {
		return Message{}, fmt.Errorf("model %s returned no final response", m.Info().Name)
	}

	final.Role = RoleAssistant

	return final, nil
}
