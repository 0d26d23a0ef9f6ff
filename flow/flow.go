// Package flow drives the model step loop shared by the triage router and the
// specialist handlers.
//
// One Step builds a request through the configured RequestProcessors, calls
// the model, and dispatches any requested tool calls through the Executor.
// The transcript is kept in a handler-local Conversation and never leaves the
// turn.
package flow

import (
	"fmt"

	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/model"
)

// Conversation is the handler-local transcript for one turn.
type Conversation struct {
	Messages []model.Message
}

// NewConversation starts a transcript with the user's utterance.
func NewConversation(text string) *Conversation {
	return &Conversation{Messages: []model.Message{model.UserMessage(text)}}
}

// Append adds messages to the transcript.
func (c *Conversation) Append(msgs ...model.Message) {
	c.Messages = append(c.Messages, msgs...)
}

// Step is the result of one model call.
type Step struct {
	// Message is the assistant reply.
	Message model.Message
	// Outcomes holds one entry per requested tool call, in call order.
	Outcomes []Outcome
}

// Final reports whether the reply requested no tool calls.
func (s Step) Final() bool { return len(s.Message.ToolCalls) == 0 }

// Options configures a Loop.
type Options struct {
	// Executor dispatches tool calls; defaults to an unbounded executor.
	Executor *Executor
	// RequestProcessors run in order before each model call. They are
	// appended after the default capabilities processor.
	RequestProcessors []RequestProcessor
	// Stream requests streaming generation from the model.
	Stream bool
}

// Loop performs model steps for one handler.
type Loop struct {
	model      model.Model
	executor   *Executor
	processors []RequestProcessor
	stream     bool
}

// NewLoop creates a step loop over m whose offered tools come from registry.
func NewLoop(m model.Model, registry *capability.Registry, optFns ...func(o *Options)) *Loop {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Executor == nil {
		opts.Executor = NewExecutor(registry, ExecutorConfig{})
	}

	processors := append([]RequestProcessor{NewCapabilitiesProcessor(registry)}, opts.RequestProcessors...)

	return &Loop{
		model:      m,
		executor:   opts.Executor,
		processors: processors,
		stream:     opts.Stream,
	}
}

// Model returns the underlying model.
func (l *Loop) Model() model.Model { return l.model }

// Step performs one model call on behalf of turn.Handler. When the reply
// requests tool calls they are executed, their events emitted, and the
// results appended to conv before Step returns.
func (l *Loop) Step(turn *core.TurnContext, conv *Conversation) (Step, error) {
	if err := turn.Limiter.Increment(); err != nil {
		return Step{}, err
	}

	req := model.Request{
		Agent:    turn.Handler,
		Messages: conv.Messages,
		Stream:   l.stream,
	}

	for _, p := range l.processors {
		if err := p.ProcessRequest(turn, &req); err != nil {
			return Step{}, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
		}
	}

	turn.LogDebug("flow.step.start",
		"handler", turn.Handler,
		"step", turn.Limiter.Count(),
		"remaining", turn.Limiter.Remaining(),
		"tools", len(req.Tools),
	)

	msg, err := model.Collect(turn.Context, l.model, req)
	if err != nil {
		return Step{}, fmt.Errorf("model %s: %w", l.model.Info().Name, err)
	}

	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = core.NewID()
		}
	}

	conv.Append(msg)

	step := Step{Message: msg}
	if step.Final() {
		return step, nil
	}

	outcomes, err := l.executor.Execute(turn, msg.ToolCalls)
	if err != nil {
		return Step{}, err
	}

	for i, o := range outcomes {
		conv.Append(model.ToolMessage(msg.ToolCalls[i].ID, o.Call.Name, o.Text()))
	}

	step.Outcomes = outcomes

	return step, nil
}
