package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/flow"
	"github.com/hupe1980/supportmesh/guardrail"
	"github.com/hupe1980/supportmesh/model"
)

// DefaultCorrectiveNote is appended to the transcript after a rejected draft.
// %s is replaced with the rule name.
const DefaultCorrectiveNote = "Your previous reply was withheld because it violated the %s output policy. " +
	"Write the answer again without apology words such as sorry, apologize or apologies."

// EmptyDraftNote is appended to the transcript after a blank draft.
const EmptyDraftNote = "Your previous reply was empty. Answer the user's request in full."

// SpecialistOptions configures a Specialist.
type SpecialistOptions struct {
	// Guardrail checks every drafted final message. Defaults to
	// guardrail.NoApologies().
	Guardrail guardrail.Evaluator
	// MaxGuardrailRetries bounds regenerations after a tripped draft.
	// Negative values are treated as 0.
	MaxGuardrailRetries int
	// StreamChunks emits the accepted text as message-chunk events before
	// the final-message.
	StreamChunks bool
	// ChunkWords is the number of words per message-chunk.
	ChunkWords int
	// CorrectiveNote is a format string receiving the rule name.
	CorrectiveNote string
	// Executor dispatches tool calls; nil selects an unbounded executor.
	Executor *flow.Executor
	// StreamModel requests streaming generation from the model.
	StreamModel bool
}

// Specialist handles a routed turn for one issue type.
type Specialist struct {
	def          Definition
	loop         *flow.Loop
	guardrail    guardrail.Evaluator
	maxRetries   int
	streamChunks bool
	chunkWords   int
	note         string
}

// NewSpecialist creates a specialist from def and binds its capabilities in
// registry.
func NewSpecialist(def Definition, m model.Model, registry *capability.Registry, optFns ...func(o *SpecialistOptions)) (*Specialist, error) {
	opts := SpecialistOptions{
		Guardrail:           guardrail.NoApologies(),
		MaxGuardrailRetries: 2,
		ChunkWords:          4,
		CorrectiveNote:      DefaultCorrectiveNote,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if m == nil {
		return nil, fmt.Errorf("specialist %s: model is required", def.Name)
	}

	if opts.Guardrail == nil {
		opts.Guardrail = guardrail.NoApologies()
	}

	if opts.MaxGuardrailRetries < 0 {
		opts.MaxGuardrailRetries = 0
	}

	if opts.ChunkWords < 1 {
		opts.ChunkWords = 1
	}

	if err := registry.Bind(def.Name, def.Capabilities...); err != nil {
		return nil, fmt.Errorf("specialist %s: %w", def.Name, err)
	}

	loop := flow.NewLoop(m, registry, func(o *flow.Options) {
		o.Executor = opts.Executor
		o.Stream = opts.StreamModel
		o.RequestProcessors = []flow.RequestProcessor{flow.NewInstructionsProcessor(def.Directive)}
	})

	return &Specialist{
		def:          def,
		loop:         loop,
		guardrail:    opts.Guardrail,
		maxRetries:   opts.MaxGuardrailRetries,
		streamChunks: opts.StreamChunks,
		chunkWords:   opts.ChunkWords,
		note:         opts.CorrectiveNote,
	}, nil
}

// Name returns the handler name used for capability binding and events.
func (s *Specialist) Name() string { return s.def.Name }

// DisplayName returns the human-readable name.
func (s *Specialist) DisplayName() string {
	if s.def.DisplayName != "" {
		return s.def.DisplayName
	}
	return s.def.Name
}

// IssueType returns the issue kind the specialist serves.
func (s *Specialist) IssueType() core.IssueType { return s.def.IssueType }

// HandoffDescription describes when triage should route here.
func (s *Specialist) HandoffDescription() string { return s.def.HandoffDescription }

// Capabilities returns the names of the bound capabilities.
func (s *Specialist) Capabilities() []string {
	out := make([]string, len(s.def.Capabilities))
	copy(out, s.def.Capabilities)
	return out
}

// Handle processes text and returns the accepted final message.
//
// Every model reply without tool calls is a draft. The draft is checked by
// the guardrail; an accepted draft is emitted (optionally chunked) followed
// by exactly one final-message event. A rejected draft emits
// guardrail-tripped, never its text, and the model is asked to regenerate.
// A blank draft is rejected the same way under guardrail.RuleEmptyDraft.
// After MaxGuardrailRetries regenerations Handle returns a
// *GuardrailExhaustedError.
func (s *Specialist) Handle(turn *core.TurnContext, text string) (string, error) {
	turn = turn.WithHandler(s.def.Name)
	conv := flow.NewConversation(text)

	rejected := 0

	turn.LogInfo("agent.handle.start", "handler", s.def.Name, "turn_id", turn.TurnID)

	for {
		step, err := s.loop.Step(turn, conv)
		if err != nil {
			if errors.Is(err, core.ErrStepLimitExceeded) {
				return "", fmt.Errorf("%s: %w: %w", s.def.Name, ErrMaxStepsExceeded, err)
			}
			return "", fmt.Errorf("%s: %w", s.def.Name, err)
		}

		if !step.Final() {
			continue
		}

		draft := strings.TrimSpace(step.Message.Text)

		verdict, note, err := s.check(turn, draft)
		if err != nil {
			return "", err
		}

		if !verdict.Tripped {
			if err := s.emitAccepted(turn, draft); err != nil {
				return "", err
			}

			turn.LogInfo("agent.handle.accepted", "handler", s.def.Name, "regenerations", rejected, "steps", turn.Limiter.Count())

			return draft, nil
		}

		rejected++

		turn.LogWarn("agent.guardrail.tripped", "handler", s.def.Name, "rule", verdict.Rule, "attempt", rejected)

		if err := turn.EmitEvent(core.NewGuardrailTrippedEvent(s.def.Name, verdict.Rule)); err != nil {
			return "", err
		}

		if rejected > s.maxRetries {
			return "", &GuardrailExhaustedError{Handler: s.def.Name, Rule: verdict.Rule, Attempts: rejected}
		}

		conv.Append(model.UserMessage(note))
	}
}

// check returns the verdict for draft and the corrective note to append
// when it is tripped. A blank draft trips without consulting the guardrail.
func (s *Specialist) check(turn *core.TurnContext, draft string) (guardrail.Verdict, string, error) {
	if draft == "" {
		return guardrail.Verdict{Tripped: true, Rule: guardrail.RuleEmptyDraft}, EmptyDraftNote, nil
	}

	verdict, err := s.guardrail.Check(turn.Context, draft, turn.Fields(), s.def.Name)
	if err != nil {
		return guardrail.Verdict{}, "", fmt.Errorf("%s: guardrail: %w", s.def.Name, err)
	}

	return verdict, fmt.Sprintf(s.note, verdict.Rule), nil
}

func (s *Specialist) emitAccepted(turn *core.TurnContext, text string) error {
	if s.streamChunks {
		for _, chunk := range chunkWords(text, s.chunkWords) {
			if err := turn.EmitEvent(core.NewMessageChunkEvent(s.def.Name, chunk)); err != nil {
				return err
			}
		}
	}

	return turn.EmitEvent(core.NewFinalMessageEvent(s.def.Name, text))
}

// chunkWords splits text into pieces of n words whose concatenation is text.
func chunkWords(text string, n int) []string {
	if text == "" {
		return nil
	}

	words := strings.SplitAfter(text, " ")

	chunks := make([]string, 0, len(words)/n+1)
	for i := 0; i < len(words); i += n {
		end := min(i+n, len(words))
		chunks = append(chunks, strings.Join(words[i:end], ""))
	}

	return chunks
}
