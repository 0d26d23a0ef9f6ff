package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/internal/testutil"
	"github.com/hupe1980/supportmesh/model"
)

func toolNames(req model.Request) []string {
	out := make([]string, 0, len(req.Tools))
	for _, t := range req.Tools {
		out = append(out, t.Name)
	}
	return out
}

func newBuiltinRegistry(t *testing.T, handler string, names ...string) *capability.Registry {
	t.Helper()

	r := capability.NewRegistry()
	require.NoError(t, r.Register(capability.Builtins()...))
	require.NoError(t, r.Bind(handler, names...))

	return r
}

func TestLoop_ToolsRecomputedEveryStep(t *testing.T) {
	r := newBuiltinRegistry(t, "technical", capability.SetIssueType, capability.RestartService)

	m := model.NewMockModel("mock").Enqueue("technical",
		model.CallReply(model.Call(capability.SetIssueType, map[string]any{"issue_type": "technical"})),
		model.TextReply("done"),
	)

	loop := NewLoop(m, r)
	turn, _ := newTestTurn(t, core.SupportFields{}, "technical")
	conv := NewConversation("restart payments")

	step, err := loop.Step(turn, conv)
	require.NoError(t, err)
	assert.False(t, step.Final())
	require.Len(t, step.Outcomes, 1)

	step, err = loop.Step(turn, conv)
	require.NoError(t, err)
	assert.True(t, step.Final())
	assert.Equal(t, "done", step.Message.Text)

	reqs := m.RequestsFor("technical")
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{capability.SetIssueType}, toolNames(reqs[0]))
	assert.Equal(t, []string{capability.SetIssueType, capability.RestartService}, toolNames(reqs[1]))

	// user, assistant(call), tool, assistant(text)
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, model.RoleTool, conv.Messages[2].Role)
	assert.Equal(t, conv.Messages[1].ToolCalls[0].ID, conv.Messages[2].ToolCallID)
	assert.Equal(t, "issue_type set to 'technical'", conv.Messages[2].Text)
}

func TestLoop_InstructionsRenderSnapshot(t *testing.T) {
	r := newBuiltinRegistry(t, "general", capability.FAQ)
	m := model.NewMockModel("mock").Enqueue("general", model.TextReply("hi"))

	loop := NewLoop(m, r, func(o *Options) {
		o.RequestProcessors = []RequestProcessor{NewInstructionsProcessor("User: {{default \"unknown\" .name}}")}
	})

	turn, _ := newTestTurn(t, core.SupportFields{Name: core.StringPtr("Ana")}, "general")

	_, err := loop.Step(turn, NewConversation("hello"))
	require.NoError(t, err)

	assert.Equal(t, "User: Ana", m.Requests()[0].Instructions)
}

func TestLoop_StepLimit(t *testing.T) {
	r := newBuiltinRegistry(t, "general", capability.FAQ)
	m := model.NewMockModel("mock")
	loop := NewLoop(m, r)

	turn, _ := newTestTurn(t, core.SupportFields{}, "general")
	conv := NewConversation("hello")

	for range 8 {
		_, err := loop.Step(turn, conv)
		require.NoError(t, err)
	}

	_, err := loop.Step(turn, conv)
	assert.ErrorIs(t, err, core.ErrStepLimitExceeded)
	assert.Len(t, m.Requests(), 8)
}

func TestLoop_LogsRemainingSteps(t *testing.T) {
	r := newBuiltinRegistry(t, "general", capability.FAQ)
	m := model.NewMockModel("mock")
	loop := NewLoop(m, r)

	rec := &testutil.RecordingLogger{}
	turn, _ := testutil.NewTurnBuilder().MaxSteps(3).Handler("general").Logger(rec).Build()
	conv := NewConversation("hello")

	for range 2 {
		_, err := loop.Step(turn, conv)
		require.NoError(t, err)
	}

	entries := rec.Find("flow.step.start")
	require.Len(t, entries, 2)

	for i, want := range []int{2, 1} {
		got, ok := entries[i].Value("remaining")
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}
