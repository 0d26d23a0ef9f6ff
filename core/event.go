package core

import (
	"time"
)

// EventType tags the variant carried by an Event.
type EventType string

const (
	// EventClassificationSet reports a committed issue type.
	EventClassificationSet EventType = "classification-set"
	// EventClassificationAmbiguous reports that triage could not commit a
	// classification and fell back to the general handler.
	EventClassificationAmbiguous EventType = "classification-ambiguous"
	// EventProfileUpdated reports persisted name / account id changes.
	EventProfileUpdated EventType = "profile-updated"
	// EventHandoffRequested reports the selected specialist.
	EventHandoffRequested EventType = "handoff-requested"
	// EventHandoffCompleted reports that the specialist has taken over.
	EventHandoffCompleted EventType = "handoff-completed"
	// EventActionInvoked reports a capability call request.
	EventActionInvoked EventType = "action-invoked"
	// EventActionResult reports the outcome of a capability call.
	EventActionResult EventType = "action-result"
	// EventMessageChunk carries a fragment of an accepted final message.
	EventMessageChunk EventType = "message-chunk"
	// EventFinalMessage carries the accepted, guardrail-checked answer.
	EventFinalMessage EventType = "final-message"
	// EventGuardrailTripped reports a rejected draft. It never carries the draft.
	EventGuardrailTripped EventType = "guardrail-tripped"
	// EventTurnFailed reports a turn that ended without a final message.
	EventTurnFailed EventType = "turn-failed"
)

// ActionCall identifies one capability invocation requested by a handler.
type ActionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Event is one orchestration signal. After emission it should be treated as
// immutable. Only the payload fields relevant to Type are populated.
type Event struct {
	ID        string    `json:"id"`
	TurnID    string    `json:"turn_id"`
	Author    string    `json:"author"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	IssueType *IssueType        `json:"issue_type,omitempty"`
	Profile   map[string]string `json:"profile,omitempty"`
	Target    string            `json:"target,omitempty"`
	Action    *ActionCall       `json:"action,omitempty"`
	Output    string            `json:"output,omitempty"`
	Text      string            `json:"text,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// NewEvent creates a bare event of the given type authored by author.
// TurnID is filled in by TurnContext.EmitEvent when left empty.
func NewEvent(author string, typ EventType) Event {
	return Event{
		ID:        NewID(),
		Author:    author,
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// NewClassificationEvent reports a committed classification.
func NewClassificationEvent(author string, t IssueType) Event {
	e := NewEvent(author, EventClassificationSet)
	e.IssueType = t.Ptr()
	return e
}

// NewClassificationAmbiguousEvent reports a fallback to the general handler.
func NewClassificationAmbiguousEvent(author, reason string) Event {
	e := NewEvent(author, EventClassificationAmbiguous)
	e.Reason = reason
	return e
}

// NewProfileUpdatedEvent reports the profile fields that were written.
func NewProfileUpdatedEvent(author string, fields map[string]string) Event {
	e := NewEvent(author, EventProfileUpdated)
	e.Profile = fields
	return e
}

// NewHandoffRequestedEvent reports that control is about to move to target.
func NewHandoffRequestedEvent(author, target string) Event {
	e := NewEvent(author, EventHandoffRequested)
	e.Target = target
	return e
}

// NewHandoffCompletedEvent reports that target is now the active handler.
func NewHandoffCompletedEvent(target string) Event {
	e := NewEvent(target, EventHandoffCompleted)
	e.Target = target
	return e
}

// NewActionInvokedEvent records a capability call request.
func NewActionInvokedEvent(author string, call ActionCall) Event {
	e := NewEvent(author, EventActionInvoked)
	e.Action = &call
	return e
}

// NewActionResultEvent records the outcome of a capability call. If err is
// non-nil its message is copied into Error.
func NewActionResultEvent(author string, call ActionCall, output string, err error) Event {
	e := NewEvent(author, EventActionResult)
	e.Action = &call
	e.Output = output
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// NewMessageChunkEvent carries a fragment of accepted text.
func NewMessageChunkEvent(author, text string) Event {
	e := NewEvent(author, EventMessageChunk)
	e.Text = text
	return e
}

// NewFinalMessageEvent carries the accepted answer of a turn.
func NewFinalMessageEvent(author, text string) Event {
	e := NewEvent(author, EventFinalMessage)
	e.Text = text
	return e
}

// NewGuardrailTrippedEvent reports a rejected draft by rule name.
func NewGuardrailTrippedEvent(author, rule string) Event {
	e := NewEvent(author, EventGuardrailTripped)
	e.Reason = rule
	return e
}

// NewTurnFailedEvent reports a turn that ended without a final message.
func NewTurnFailedEvent(author string, err error) Event {
	e := NewEvent(author, EventTurnFailed)
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsTerminal reports whether the event ends a turn.
func (e Event) IsTerminal() bool {
	return e.Type == EventFinalMessage || e.Type == EventTurnFailed
}
