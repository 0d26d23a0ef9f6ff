package triage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportmesh/agent"
	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/internal/testutil"
	"github.com/hupe1980/supportmesh/model"
)

func newRouter(t *testing.T, m model.Model) *Router {
	t.Helper()

	c, err := agent.DefaultCatalog()
	require.NoError(t, err)

	r := capability.NewRegistry()
	require.NoError(t, r.Register(capability.Builtins()...))

	router, err := NewRouter(c.Triage, m, r)
	require.NoError(t, err)

	return router
}

func newTurn(fields core.SupportFields, maxSteps int) (*core.TurnContext, chan core.Event) {
	return testutil.NewTurnBuilder().Fields(fields).MaxSteps(maxSteps).Build()
}

func TestRouter_CommitsBeforeHandoff(t *testing.T) {
	m := model.NewMockModel("mock").Enqueue("triage",
		model.CallReply(
			model.Call(capability.SetIssueType, map[string]any{"issue_type": "billing"}),
			model.Call(capability.UpdateUserProfile, map[string]any{"name": " Ana ", "account_id": "ACC-1"}),
		),
		model.CallReply(model.Call(capability.TransferToHandler, map[string]any{"target": "billing"})),
	)

	router := newRouter(t, m)
	turn, ch := newTurn(core.SupportFields{}, 8)

	decision, err := router.Route(turn, "I'm Ana, ACC-1, where's my invoice?")
	require.NoError(t, err)
	assert.Equal(t, core.IssueTypeBilling, decision.Target)
	assert.Equal(t, "billing", decision.Requested)
	assert.False(t, decision.Ambiguous())

	snap := turn.Fields()
	assert.True(t, snap.HasIssueType(core.IssueTypeBilling))
	assert.Equal(t, "Ana", *snap.Name)
	assert.Equal(t, "ACC-1", *snap.AccountID)

	events := testutil.Drain(ch)
	assert.Equal(t, []core.EventType{
		core.EventActionInvoked,
		core.EventActionInvoked,
		core.EventActionResult,
		core.EventActionResult,
		core.EventClassificationSet,
		core.EventProfileUpdated,
		core.EventActionInvoked,
		core.EventActionResult,
		core.EventHandoffRequested,
	}, testutil.Types(events))

	assert.Equal(t, map[string]string{"name": "Ana", "account_id": "ACC-1"}, events[5].Profile)

	last := events[len(events)-1]
	assert.Equal(t, "billing", last.Target)
	assert.Equal(t, "triage", last.Author)

	// the model never saw the specialist tools
	for _, req := range m.RequestsFor("triage") {
		assert.False(t, req.HasTool(capability.Refund))
		assert.True(t, req.HasTool(capability.TransferToHandler))
	}
}

func TestRouter_AmbiguousFallsBackToGeneral(t *testing.T) {
	m := model.NewMockModel("mock").Enqueue("triage", model.TextReply("I am not sure."))

	router := newRouter(t, m)
	turn, ch := newTurn(core.SupportFields{}, 8)

	decision, err := router.Route(turn, "hmm")
	require.NoError(t, err)
	assert.Equal(t, core.IssueTypeGeneral, decision.Target)
	assert.True(t, decision.Ambiguous())
	assert.ErrorIs(t, decision.Fallback, ErrClassificationAmbiguous)
	assert.True(t, turn.Fields().HasIssueType(core.IssueTypeGeneral))

	events := testutil.Drain(ch)
	assert.Equal(t, []core.EventType{
		core.EventClassificationAmbiguous,
		core.EventActionInvoked,
		core.EventActionResult,
		core.EventClassificationSet,
		core.EventHandoffRequested,
	}, testutil.Types(events))

	for _, ev := range events {
		assert.Empty(t, ev.Text, "router must not surface model text")
	}
}

func TestRouter_InvalidClassificationIsAmbiguous(t *testing.T) {
	m := model.NewMockModel("mock").Enqueue("triage",
		model.CallReply(model.Call(capability.SetIssueType, map[string]any{"issue_type": "sales"})),
		model.CallReply(model.Call(capability.TransferToHandler, map[string]any{"target": "general"})),
	)

	router := newRouter(t, m)
	turn, ch := newTurn(core.SupportFields{}, 8)

	decision, err := router.Route(turn, "buy more seats")
	require.NoError(t, err)
	assert.Equal(t, core.IssueTypeGeneral, decision.Target)
	assert.True(t, decision.Ambiguous())

	events := testutil.Drain(ch)
	require.NotEmpty(t, events)
	assert.NotEmpty(t, events[1].Error, "invalid enum is reported in the action result")
	assert.Contains(t, testutil.Types(events), core.EventClassificationAmbiguous)
}

func TestRouter_PreviousTurnClassificationDoesNotCount(t *testing.T) {
	m := model.NewMockModel("mock").Enqueue("triage", model.TextReply("ok"))

	router := newRouter(t, m)
	turn, _ := newTurn(core.SupportFields{IssueType: core.IssueTypeTechnical.Ptr()}, 8)

	decision, err := router.Route(turn, "anything else?")
	require.NoError(t, err)
	assert.True(t, decision.Ambiguous())
	assert.True(t, turn.Fields().HasIssueType(core.IssueTypeGeneral))
}

func TestRouter_TransferMismatchIgnored(t *testing.T) {
	m := model.NewMockModel("mock").Enqueue("triage",
		model.CallReply(
			model.Call(capability.SetIssueType, map[string]any{"issue_type": "technical"}),
			model.Call(capability.TransferToHandler, map[string]any{"target": "billing"}),
		),
	)

	router := newRouter(t, m)
	turn, _ := newTurn(core.SupportFields{}, 8)

	decision, err := router.Route(turn, "restart payments")
	require.NoError(t, err)
	assert.Equal(t, core.IssueTypeTechnical, decision.Target)
	assert.Equal(t, "billing", decision.Requested)
	assert.False(t, decision.Ambiguous())
	assert.Len(t, m.RequestsFor("triage"), 1)
}

func TestRouter_NoProfileEventWithoutChanges(t *testing.T) {
	m := model.NewMockModel("mock").Enqueue("triage",
		model.CallReply(
			model.Call(capability.SetIssueType, map[string]any{"issue_type": "general"}),
			model.Call(capability.UpdateUserProfile, map[string]any{"name": nil}),
			model.Call(capability.TransferToHandler, map[string]any{"target": "general"}),
		),
	)

	router := newRouter(t, m)
	turn, ch := newTurn(core.SupportFields{}, 8)

	_, err := router.Route(turn, "what are your hours?")
	require.NoError(t, err)
	assert.NotContains(t, testutil.Types(testutil.Drain(ch)), core.EventProfileUpdated)
}

func TestRouter_StepLimitFallsBack(t *testing.T) {
	m := model.NewMockModel("mock")
	for range 4 {
		m.Enqueue("triage", model.CallReply(model.Call(capability.UpdateUserProfile, map[string]any{})))
	}

	router := newRouter(t, m)
	turn, _ := newTurn(core.SupportFields{}, 2)

	decision, err := router.Route(turn, "loop")
	require.NoError(t, err)
	assert.True(t, decision.Ambiguous())
	assert.ErrorContains(t, decision.Fallback, "step limit")
}

func TestRouter_ModelErrorPropagates(t *testing.T) {
	boom := errors.New("quota exceeded")
	m := model.NewMockModel("mock").Enqueue("triage", model.ErrorReply(boom))

	router := newRouter(t, m)
	turn, ch := newTurn(core.SupportFields{}, 8)

	_, err := router.Route(turn, "hi")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, testutil.Drain(ch))
}
