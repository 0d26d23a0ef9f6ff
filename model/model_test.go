package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolCall_Args(t *testing.T) {
	args, err := ToolCall{Name: "faq", Arguments: `{"query":"hours"}`}.Args()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "hours"}, args)

	args, err = ToolCall{Name: "faq"}.Args()
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = ToolCall{Name: "faq", Arguments: "null"}.Args()
	require.NoError(t, err)
	assert.NotNil(t, args)

	_, err = ToolCall{Name: "faq", Arguments: "{"}.Args()
	assert.Error(t, err)
}

func TestRequest_Helpers(t *testing.T) {
	req := Request{
		Messages: []Message{
			UserMessage("first"),
			AssistantMessage("", ToolCall{ID: "1", Name: "faq"}),
			ToolMessage("1", "faq", "answer"),
			UserMessage("second"),
			AssistantMessage("ok"),
		},
		Tools: []ToolDefinition{{Name: "faq"}},
	}

	assert.Equal(t, "second", req.LastUserText())
	assert.True(t, req.HasTool("faq"))
	assert.False(t, req.HasTool("refund"))
	assert.Empty(t, Request{}.LastUserText())
}

func TestMockModel_ScriptedPerAgent(t *testing.T) {
	m := NewMockModel("mock").
		Enqueue("triage", CallReply(Call("set_issue_type", map[string]any{"issue_type": "billing"}))).
		Enqueue("billing", TextReply("Done."))

	msg, err := Collect(context.Background(), m, Request{Agent: "billing", Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "Done.", msg.Text)
	assert.Equal(t, RoleAssistant, msg.Role)

	msg, err = Collect(context.Background(), m, Request{Agent: "triage", Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "set_issue_type", msg.ToolCalls[0].Name)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)

	msg, err = Collect(context.Background(), m, Request{Agent: "triage", Messages: []Message{UserMessage("again")}})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: again", msg.Text)

	assert.Len(t, m.Requests(), 3)
	assert.Len(t, m.RequestsFor("triage"), 2)
	assert.Zero(t, m.Pending("triage"))
}

func TestMockModel_StreamingEndsWithFinal(t *testing.T) {
	m := NewMockModel("mock").Enqueue("general", TextReply("abc"))

	respCh, errCh := m.Generate(context.Background(), Request{Agent: "general", Stream: true})

	var partials, finals int
	for r := range respCh {
		if r.Partial {
			partials++
			continue
		}
		finals++
		assert.Equal(t, "abc", r.Message.Text)
		assert.Equal(t, "stop", r.FinishReason)
	}
	assert.NoError(t, <-errCh)
	assert.Equal(t, 3, partials)
	assert.Equal(t, 1, finals)
}

func TestCollect_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockModel("mock").Enqueue("general", ErrorReply(boom))

	_, err := Collect(context.Background(), m, Request{Agent: "general"})
	assert.ErrorIs(t, err, boom)
}
