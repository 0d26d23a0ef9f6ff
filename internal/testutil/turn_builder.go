package testutil

import (
	"context"

	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/logging"
)

// TurnBuilder assembles a TurnContext backed by a buffered event channel.
// Example:
//
//	turn, ch := NewTurnBuilder().Premium().IssueType(core.IssueTypeBilling).Handler("billing").Build()
type TurnBuilder struct {
	ctx      context.Context
	fields   core.SupportFields
	support  *core.SupportContext
	input    string
	handler  string
	maxSteps int
	buffer   int
	logger   logging.Logger
}

// NewTurnBuilder returns a builder with an empty SupportContext, 8 steps and
// a 128 event buffer.
func NewTurnBuilder() *TurnBuilder {
	return &TurnBuilder{
		ctx:      context.Background(),
		input:    "msg",
		maxSteps: 8,
		buffer:   128,
		logger:   logging.NoOpLogger{},
	}
}

// Context sets the ambient context (chainable).
func (b *TurnBuilder) Context(ctx context.Context) *TurnBuilder {
	b.ctx = ctx
	return b
}

// Fields sets the initial SupportContext fields (chainable).
func (b *TurnBuilder) Fields(f core.SupportFields) *TurnBuilder {
	b.fields = f
	return b
}

// Support shares an existing SupportContext; Fields is then ignored (chainable).
func (b *TurnBuilder) Support(sc *core.SupportContext) *TurnBuilder {
	b.support = sc
	return b
}

// Premium marks the user as premium (chainable).
func (b *TurnBuilder) Premium() *TurnBuilder {
	b.fields.IsPremiumUser = true
	return b
}

// IssueType presets the classification (chainable).
func (b *TurnBuilder) IssueType(t core.IssueType) *TurnBuilder {
	b.fields.IssueType = t.Ptr()
	return b
}

// Input sets the raw user input (chainable).
func (b *TurnBuilder) Input(s string) *TurnBuilder {
	b.input = s
	return b
}

// Handler derives the turn for handler (chainable).
func (b *TurnBuilder) Handler(h string) *TurnBuilder {
	b.handler = h
	return b
}

// MaxSteps sets the per-handler step limit (chainable).
func (b *TurnBuilder) MaxSteps(n int) *TurnBuilder {
	b.maxSteps = n
	return b
}

// Logger sets the logger (chainable).
func (b *TurnBuilder) Logger(l logging.Logger) *TurnBuilder {
	b.logger = l
	return b
}

// Build returns the turn and the channel its events are emitted to.
func (b *TurnBuilder) Build() (*core.TurnContext, chan core.Event) {
	sc := b.support
	if sc == nil {
		sc = core.NewSupportContext(b.fields)
	}

	ch := make(chan core.Event, b.buffer)
	turn := core.NewTurnContext(b.ctx, core.NewTurnID(), b.input, sc, b.maxSteps, ch, b.logger)

	if b.handler != "" {
		turn = turn.WithHandler(b.handler)
	}

	return turn, ch
}
