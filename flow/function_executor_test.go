package flow

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/internal/testutil"
	"github.com/hupe1980/supportmesh/model"
)

func newTestTurn(t *testing.T, fields core.SupportFields, handler string) (*core.TurnContext, chan core.Event) {
	t.Helper()

	return testutil.NewTurnBuilder().Fields(fields).Handler(handler).Build()
}

func slowCapability(name string, delay time.Duration, active, peak *atomic.Int32) *capability.Capability {
	return capability.Must(capability.New(name, "slow", nil, func(actx *core.ActionContext, _ map[string]any) (string, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(delay)
		active.Add(-1)
		return actx.Capability() + " done", nil
	}))
}

func TestExecutor_PreservesCallOrder(t *testing.T) {
	var active, peak atomic.Int32

	r := capability.NewRegistry()
	require.NoError(t, r.Register(
		slowCapability("slow", 30*time.Millisecond, &active, &peak),
		slowCapability("fast", 0, &active, &peak),
	))
	require.NoError(t, r.Bind("general", "slow", "fast"))

	turn, ch := newTestTurn(t, core.SupportFields{}, "general")

	outcomes, err := NewExecutor(r, ExecutorConfig{MaxParallel: 2}).Execute(turn, []model.ToolCall{
		{ID: "1", Name: "slow", Arguments: "{}"},
		{ID: "2", Name: "fast", Arguments: "{}"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "slow done", outcomes[0].Output)
	assert.Equal(t, "fast done", outcomes[1].Output)

	events := testutil.Drain(ch)
	require.Len(t, events, 4)

	types := []core.EventType{events[0].Type, events[1].Type, events[2].Type, events[3].Type}
	assert.Equal(t, []core.EventType{
		core.EventActionInvoked, core.EventActionInvoked,
		core.EventActionResult, core.EventActionResult,
	}, types)
	assert.Equal(t, "1", events[2].Action.ID)
	assert.Equal(t, "2", events[3].Action.ID)
	assert.Equal(t, "general", events[0].Author)
}

func TestExecutor_RespectsMaxParallel(t *testing.T) {
	var active, peak atomic.Int32

	r := capability.NewRegistry()
	require.NoError(t, r.Register(slowCapability("slow", 10*time.Millisecond, &active, &peak)))
	require.NoError(t, r.Bind("general", "slow"))

	turn, _ := newTestTurn(t, core.SupportFields{}, "general")

	calls := make([]model.ToolCall, 6)
	for i := range calls {
		calls[i] = model.ToolCall{Name: "slow"}
	}

	_, err := NewExecutor(r, ExecutorConfig{MaxParallel: 2}).Execute(turn, calls)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecutor_MutatingCallsApplyBeforeGatedCalls(t *testing.T) {
	r := capability.NewRegistry()
	require.NoError(t, r.Register(capability.Builtins()...))
	require.NoError(t, r.Bind("technical", capability.RestartService, capability.SetIssueType))

	turn, _ := newTestTurn(t, core.SupportFields{}, "technical")

	outcomes, err := NewExecutor(r, ExecutorConfig{}).Execute(turn, []model.ToolCall{
		model.Call(capability.RestartService, map[string]any{"service_name": "payments"}),
		model.Call(capability.SetIssueType, map[string]any{"issue_type": "technical"}),
	})
	require.NoError(t, err)

	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "Service 'payments' restarted successfully.", outcomes[0].Output)
	assert.Equal(t, capability.RestartService, outcomes[0].Call.Name)
}

func TestExecutor_InvalidJSONIsValidationError(t *testing.T) {
	r := capability.NewRegistry()
	require.NoError(t, r.Register(capability.Builtins()...))
	require.NoError(t, r.Bind("general", capability.FAQ))

	turn, ch := newTestTurn(t, core.SupportFields{}, "general")

	outcomes, err := NewExecutor(r, ExecutorConfig{}).Execute(turn, []model.ToolCall{
		{ID: "x", Name: capability.FAQ, Arguments: "{not json"},
	})
	require.NoError(t, err)

	var ve *capability.ValidationError
	assert.ErrorAs(t, outcomes[0].Err, &ve)
	assert.Contains(t, outcomes[0].Text(), "Error:")

	events := testutil.Drain(ch)
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[1].Error)
}

func TestExecutor_RecoversPanics(t *testing.T) {
	r := capability.NewRegistry()
	require.NoError(t, r.Register(capability.Must(capability.New("boom", "panics", nil, func(*core.ActionContext, map[string]any) (string, error) {
		panic("kaboom")
	}))))
	require.NoError(t, r.Bind("general", "boom"))

	turn, _ := newTestTurn(t, core.SupportFields{}, "general")

	outcomes, err := NewExecutor(r, ExecutorConfig{LogStartEvents: true}).Execute(turn, []model.ToolCall{{ID: "p", Name: "boom"}})
	require.NoError(t, err)

	var ee *capability.ExecutionError
	require.ErrorAs(t, outcomes[0].Err, &ee)
	assert.Contains(t, ee.Error(), "kaboom")
}

func TestExecutor_NoCalls(t *testing.T) {
	turn, ch := newTestTurn(t, core.SupportFields{}, "general")

	outcomes, err := NewExecutor(capability.NewRegistry(), ExecutorConfig{}).Execute(turn, nil)
	assert.NoError(t, err)
	assert.Nil(t, outcomes)
	assert.Empty(t, testutil.Drain(ch))
}
