package testutil

import (
	"time"

	"github.com/hupe1980/supportmesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder(core.EventActionResult).Author("billing").Action("refund", nil).Output("ok").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	ev core.Event
}

// NewEventBuilder creates a builder for typ with default author "triage".
func NewEventBuilder(typ core.EventType) *EventBuilder {
	return &EventBuilder{ev: core.NewEvent("triage", typ)}
}

// Author sets the author (chainable).
func (b *EventBuilder) Author(a string) *EventBuilder {
	b.ev.Author = a
	return b
}

// Turn sets the turn id (chainable).
func (b *EventBuilder) Turn(id string) *EventBuilder {
	b.ev.TurnID = id
	return b
}

// At overrides the timestamp (chainable).
func (b *EventBuilder) At(ts time.Time) *EventBuilder {
	b.ev.Timestamp = ts
	return b
}

// IssueType sets the classification payload (chainable).
func (b *EventBuilder) IssueType(t core.IssueType) *EventBuilder {
	b.ev.IssueType = t.Ptr()
	return b
}

// Target sets the handoff target (chainable).
func (b *EventBuilder) Target(t string) *EventBuilder {
	b.ev.Target = t
	return b
}

// Action sets the action payload with a generated call id (chainable).
func (b *EventBuilder) Action(name string, args map[string]any) *EventBuilder {
	b.ev.Action = &core.ActionCall{ID: core.NewID(), Name: name, Args: args}
	return b
}

// Output sets the action output (chainable).
func (b *EventBuilder) Output(o string) *EventBuilder {
	b.ev.Output = o
	return b
}

// Error sets the error text (chainable).
func (b *EventBuilder) Error(e string) *EventBuilder {
	b.ev.Error = e
	return b
}

// Text sets the message text (chainable).
func (b *EventBuilder) Text(t string) *EventBuilder {
	b.ev.Text = t
	return b
}

// Reason sets the reason / rule (chainable).
func (b *EventBuilder) Reason(r string) *EventBuilder {
	b.ev.Reason = r
	return b
}

// Build returns the event.
func (b *EventBuilder) Build() core.Event { return b.ev }

// Types returns the event types in order.
func Types(events []core.Event) []core.EventType {
	out := make([]core.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

// Index returns the position of the first event of typ, or -1. A non-empty
// action restricts the match to events for that capability.
func Index(events []core.Event, typ core.EventType, action string) int {
	for i, ev := range events {
		if ev.Type != typ {
			continue
		}
		if action != "" && (ev.Action == nil || ev.Action.Name != action) {
			continue
		}
		return i
	}
	return -1
}

// Drain returns every event currently buffered in ch without blocking.
func Drain(ch chan core.Event) []core.Event {
	var out []core.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
