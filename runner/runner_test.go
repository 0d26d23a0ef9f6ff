package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/supportmesh/agent"
	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/model"
	"github.com/hupe1980/supportmesh/triage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRunner(t *testing.T, m model.Model, optFns ...func(o *Options)) *Runner {
	t.Helper()

	c, err := agent.DefaultCatalog()
	require.NoError(t, err)

	registry := capability.NewRegistry()
	require.NoError(t, registry.Register(capability.Builtins()...))

	router, err := triage.NewRouter(c.Triage, m, registry)
	require.NoError(t, err)

	var specialists []*agent.Specialist
	for _, def := range c.Specialists {
		sp, err := agent.NewSpecialist(def, m, registry)
		require.NoError(t, err)
		specialists = append(specialists, sp)
	}

	set, err := agent.NewSet(specialists...)
	require.NoError(t, err)

	return New(router, set, optFns...)
}

func eventTypes(events []core.Event) []core.EventType {
	out := make([]core.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func indexOf(events []core.Event, typ core.EventType) int {
	for i, ev := range events {
		if ev.Type == typ {
			return i
		}
	}
	return -1
}

// gatedModel blocks every Generate call until release is closed.
type gatedModel struct {
	model.Model
	release chan struct{}
}

func (g *gatedModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	<-g.release
	return g.Model.Generate(ctx, req)
}

func TestRunner_BillingTurn(t *testing.T) {
	m := model.NewMockModel("mock").
		Enqueue("triage",
			model.CallReply(model.Call(capability.SetIssueType, map[string]any{"issue_type": "billing"})),
			model.CallReply(model.Call(capability.TransferToHandler, map[string]any{"target": "billing"})),
		).
		Enqueue("billing",
			model.CallReply(model.Call(capability.Refund, map[string]any{"order_id": "A1001", "amount": 49.99})),
			model.TextReply("Your refund for A1001 was issued."),
		)

	r := newTestRunner(t, m)
	sc := core.NewSupportContext(core.SupportFields{IsPremiumUser: true})

	res, err := r.RunSync(context.Background(), sc, "refund order A1001 for 49.99")
	require.NoError(t, err)
	require.NoError(t, res.Err)

	assert.Equal(t, "Your refund for A1001 was issued.", res.FinalText())
	assert.True(t, res.Snapshot.HasIssueType(core.IssueTypeBilling))

	classified := indexOf(res.Events, core.EventClassificationSet)
	completed := indexOf(res.Events, core.EventHandoffCompleted)
	require.NotEqual(t, -1, classified)
	require.NotEqual(t, -1, completed)
	assert.Less(t, classified, completed)
	assert.Less(t, indexOf(res.Events, core.EventHandoffRequested), completed)

	assert.Equal(t, "billing", res.Events[completed].Target)
	assert.Equal(t, core.EventFinalMessage, res.Events[len(res.Events)-1].Type)

	for _, ev := range res.Events {
		assert.Equal(t, res.TurnID, ev.TurnID)
		if ev.Type == core.EventActionResult && ev.Action.Name == capability.Refund {
			assert.Equal(t, "Refund issued for order A1001, amount $49.99.", ev.Output)
		}
	}

	rec, err := r.Store().Get(res.TurnID)
	require.NoError(t, err)
	assert.Equal(t, "billing", rec.Handler)
	assert.Equal(t, res.FinalText(), rec.FinalText)
	assert.Equal(t, len(res.Events), len(rec.Events))
	assert.False(t, rec.Failed())
}

func TestRunner_GuardrailExhaustedFailsTurn(t *testing.T) {
	m := model.NewMockModel("mock").
		Enqueue("triage",
			model.CallReply(
				model.Call(capability.SetIssueType, map[string]any{"issue_type": "general"}),
				model.Call(capability.TransferToHandler, map[string]any{"target": "general"}),
			),
		).
		Enqueue("general",
			model.TextReply("Sorry!"),
			model.TextReply("So sorry!"),
			model.TextReply("Apologies!"),
		)

	r := newTestRunner(t, m)
	sc := core.NewSupportContext(core.SupportFields{})

	res, err := r.RunSync(context.Background(), sc, "hello")
	require.NoError(t, err)

	var ge *agent.GuardrailExhaustedError
	require.ErrorAs(t, res.Err, &ge)

	assert.Empty(t, res.FinalText())
	assert.Equal(t, -1, indexOf(res.Events, core.EventFinalMessage))
	assert.Equal(t, core.EventTurnFailed, res.Events[len(res.Events)-1].Type)

	for _, ev := range res.Events {
		assert.NotContains(t, ev.Text, "orry")
	}

	rec, err := r.Store().Get(res.TurnID)
	require.NoError(t, err)
	assert.True(t, rec.Failed())
}

func TestRunner_EmptyInputSkipped(t *testing.T) {
	m := model.NewMockModel("mock")
	r := newTestRunner(t, m)

	for _, in := range []string{"", "   ", "\n\t"} {
		_, _, _, err := r.Run(context.Background(), core.NewSupportContext(core.SupportFields{}), in)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}

	assert.Empty(t, m.Requests())
	assert.Empty(t, r.Store().List())
}

func TestRunner_TurnsAreSequential(t *testing.T) {
	gm := &gatedModel{Model: model.NewMockModel("mock"), release: make(chan struct{})}
	r := newTestRunner(t, gm)
	sc := core.NewSupportContext(core.SupportFields{})

	_, events, errs, err := r.Run(context.Background(), sc, "first")
	require.NoError(t, err)

	second := make(chan struct{})

	var (
		wg  sync.WaitGroup
		res TurnResult
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(second)
		res, err = r.RunSync(context.Background(), sc, "second")
	}()

	select {
	case <-second:
		t.Fatal("second turn started before the first terminated")
	case <-time.After(50 * time.Millisecond):
	}

	close(gm.release)

	for range events {
	}
	for range errs {
	}

	wg.Wait()
	require.NoError(t, err)
	assert.NotEmpty(t, res.FinalText())

	list := r.Store().List()
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Input)
	assert.Equal(t, "second", list[1].Input)
}

func TestRunner_CancelledCallerStillCompletesTurn(t *testing.T) {
	gm := &gatedModel{Model: model.NewMockModel("mock"), release: make(chan struct{})}
	r := newTestRunner(t, gm, func(o *Options) { o.EventBufferSize = 0 })
	sc := core.NewSupportContext(core.SupportFields{})

	ctx, cancel := context.WithCancel(context.Background())

	turnID, events, errs, err := r.Run(ctx, sc, "hello there")
	require.NoError(t, err)

	cancel()
	close(gm.release)

	for range events {
	}
	for range errs {
	}

	rec, err := r.Store().Get(turnID)
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello there", rec.FinalText)
	assert.True(t, sc.Snapshot().HasIssueType(core.IssueTypeGeneral))
}

func TestRunner_ContextCancelledBeforeStart(t *testing.T) {
	r := newTestRunner(t, model.NewMockModel("mock"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// occupy the turn slot
	r.turnSem <- struct{}{}
	defer func() { <-r.turnSem }()

	_, _, _, err := r.Run(ctx, core.NewSupportContext(core.SupportFields{}), "hi")
	assert.ErrorIs(t, err, context.Canceled)
}
