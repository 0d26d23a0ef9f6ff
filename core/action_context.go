package core

import (
	"context"
	"errors"

	"github.com/hupe1980/supportmesh/logging"
)

// ErrReadOnlyContext is returned when a capability that is not declared as
// mutating attempts to write the SupportContext.
var ErrReadOnlyContext = errors.New("support context is read-only for this capability")

// ActionContext provides a constrained surface for capability implementations.
// Reads always observe the latest committed SupportContext; writes are only
// granted to capabilities the registry marks as mutating.
type ActionContext struct {
	turn       *TurnContext
	callID     string
	capability string
	writable   bool

	*loggerAdapter
}

// NewActionContext constructs a read-only action context bound to a turn and
// a unique callID.
func NewActionContext(turn *TurnContext, callID string) *ActionContext {
	return &ActionContext{
		turn:          turn,
		callID:        callID,
		loggerAdapter: newLoggerAdapter(turn.Logger()),
	}
}

// ForCapability returns a copy scoped to the named capability. writable grants
// access to Update.
func (ac *ActionContext) ForCapability(name string, writable bool) *ActionContext {
	c := *ac
	c.capability = name
	c.writable = writable
	return &c
}

// Context returns the context associated with the action invocation.
func (ac *ActionContext) Context() context.Context { return ac.turn.Context }

// TurnID returns the turn the invocation belongs to.
func (ac *ActionContext) TurnID() string { return ac.turn.TurnID }

// CallID returns the identifier correlating request and result events.
func (ac *ActionContext) CallID() string { return ac.callID }

// Handler returns the name of the handler requesting the invocation.
func (ac *ActionContext) Handler() string { return ac.turn.Handler }

// Capability returns the capability this context is scoped to.
func (ac *ActionContext) Capability() string { return ac.capability }

// Logger returns the logger associated with the invocation.
func (ac *ActionContext) Logger() logging.Logger { return ac.loggerAdapter.Logger() }

// Fields returns a snapshot of the shared SupportContext.
func (ac *ActionContext) Fields() SupportFields { return ac.turn.Support.Snapshot() }

// Update mutates the shared SupportContext in place.
func (ac *ActionContext) Update(fn func(f *SupportFields)) error {
	if !ac.writable {
		return ErrReadOnlyContext
	}

	rev := ac.turn.Support.Update(fn)
	ac.LogDebug("support.context.updated", "capability", ac.capability, "call_id", ac.callID, "revision", rev)

	return nil
}
