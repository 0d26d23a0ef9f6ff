package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Reply is one scripted MockModel answer.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
	Err       error
}

// TextReply scripts a plain text answer.
func TextReply(text string) Reply { return Reply{Text: text} }

// CallReply scripts an answer requesting tool calls.
func CallReply(calls ...ToolCall) Reply { return Reply{ToolCalls: calls} }

// ErrorReply scripts a generation failure.
func ErrorReply(err error) Reply { return Reply{Err: err} }

// Call builds a ToolCall with JSON-encoded args. The ID is assigned by the
// MockModel when left empty.
func Call(name string, args map[string]any) ToolCall {
	b, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return ToolCall{Name: name, Arguments: string(b)}
}

// MockModel is a scripted in-memory Model useful for tests and examples.
// Replies are queued per agent and consumed in order; an exhausted queue
// answers with "Mock response to: <last user text>".
type MockModel struct {
	info Info

	mu       sync.Mutex
	queues   map[string][]Reply
	requests []Request
	calls    int
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
		queues: make(map[string][]Reply),
	}
}

// Enqueue appends scripted replies for agent.
func (m *MockModel) Enqueue(agent string, replies ...Reply) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queues[agent] = append(m.queues[agent], replies...)

	return m
}

// Requests returns every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// RequestsFor returns the requests issued by agent.
func (m *MockModel) RequestsFor(agent string) []Request {
	var out []Request
	for _, r := range m.Requests() {
		if r.Agent == agent {
			out = append(out, r)
		}
	}
	return out
}

// Pending returns the number of unconsumed replies for agent.
func (m *MockModel) Pending(agent string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queues[agent])
}

func (m *MockModel) next(req Request) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	q := m.queues[req.Agent]
	if len(q) == 0 {
		return TextReply(fmt.Sprintf("Mock response to: %s", req.LastUserText()))
	}

	reply := q[0]
	m.queues[req.Agent] = q[1:]

	calls := make([]ToolCall, len(reply.ToolCalls))
	for i, tc := range reply.ToolCalls {
		if tc.ID == "" {
			m.calls++
			tc.ID = fmt.Sprintf("call_%d", m.calls)
		}
		calls[i] = tc
	}
	reply.ToolCalls = calls

	return reply
}

// Generate implements Model; emits optional streaming rune chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		reply := m.next(req)
		if reply.Err != nil {
			errCh <- reply.Err
			return
		}

		if req.Stream {
			for _, r := range reply.Text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Message: AssistantMessage(string(r))}:
				}
			}
		}

		finish := "stop"
		if len(reply.ToolCalls) > 0 {
			finish = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{
			Message:      AssistantMessage(reply.Text, reply.ToolCalls...),
			FinishReason: finish,
		}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
