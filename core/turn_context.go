package core

import (
	"context"

	"github.com/hupe1980/supportmesh/logging"
)

// TurnContext carries the execution scope of one conversation turn. It
// aggregates:
//   - The ambient cancellation Context
//   - The TurnID and the raw user input
//   - The shared SupportContext (by reference, never cloned)
//   - The emission channel consumed by the runner
//   - A StepLimiter bounding the model calls of the acting handler
//   - The name of the component currently acting (Handler)
//
// WithHandler derives a scope for another component; every derived scope
// shares the same SupportContext and emitter but starts a fresh limiter.
type TurnContext struct {
	Context context.Context
	TurnID  string
	Input   string
	Support *SupportContext
	Handler string
	Limiter *StepLimiter
	Emit    chan<- Event

	*loggerAdapter
}

// NewTurnContext constructs the root TurnContext for a turn.
func NewTurnContext(
	ctx context.Context,
	turnID, input string,
	support *SupportContext,
	maxSteps int,
	emit chan<- Event,
	logger logging.Logger,
) *TurnContext {
	return &TurnContext{
		Context:       ctx,
		TurnID:        turnID,
		Input:         input,
		Support:       support,
		Limiter:       NewStepLimiter(maxSteps),
		Emit:          emit,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// WithHandler returns a shallow copy acting on behalf of handler.
func (tc *TurnContext) WithHandler(handler string) *TurnContext {
	c := *tc
	c.Handler = handler
	c.Limiter = NewStepLimiter(tc.Limiter.Max())
	return &c
}

// Fields returns a snapshot of the shared SupportContext.
func (tc *TurnContext) Fields() SupportFields { return tc.Support.Snapshot() }

// EmitEvent stamps the TurnID (if missing) and sends ev to the runner. It
// blocks until the event is accepted or the context is cancelled.
func (tc *TurnContext) EmitEvent(ev Event) error {
	if ev.TurnID == "" {
		ev.TurnID = tc.TurnID
	}

	if tc.Emit == nil {
		return nil
	}

	select {
	case <-tc.Context.Done():
		return tc.Context.Err()
	case tc.Emit <- ev:
	}

	return nil
}
