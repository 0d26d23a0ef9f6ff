package triage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/supportmesh/agent"
	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/flow"
	"github.com/hupe1980/supportmesh/model"
)

// ErrClassificationAmbiguous marks a decision that fell back to the general
// handler.
var ErrClassificationAmbiguous = errors.New("classification ambiguous")

// HandoffDecision is the outcome of routing one turn.
type HandoffDecision struct {
	// Target is the committed issue type; it selects the specialist.
	Target core.IssueType
	// Requested is the target named by transfer_to_handler, if any.
	Requested string
	// Fallback is non-nil when the router defaulted to general. It wraps
	// ErrClassificationAmbiguous.
	Fallback error
}

// Ambiguous reports whether the decision is a fallback.
func (d HandoffDecision) Ambiguous() bool { return d.Fallback != nil }

// Options configures a Router.
type Options struct {
	// Executor dispatches tool calls; nil selects an unbounded executor.
	Executor *flow.Executor
	// StreamModel requests streaming generation from the model.
	StreamModel bool
}

// Router classifies a turn and selects its specialist.
type Router struct {
	def      agent.Definition
	loop     *flow.Loop
	executor *flow.Executor
}

// NewRouter creates a router from the triage definition and binds its
// capabilities in registry.
func NewRouter(def agent.Definition, m model.Model, registry *capability.Registry, optFns ...func(o *Options)) (*Router, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if m == nil {
		return nil, fmt.Errorf("router %s: model is required", def.Name)
	}

	if opts.Executor == nil {
		opts.Executor = flow.NewExecutor(registry, flow.ExecutorConfig{})
	}

	// fallback commits go through set_issue_type even if the catalog omits it
	caps := append([]string{capability.SetIssueType}, def.Capabilities...)
	if err := registry.Bind(def.Name, caps...); err != nil {
		return nil, fmt.Errorf("router %s: %w", def.Name, err)
	}

	loop := flow.NewLoop(m, registry, func(o *flow.Options) {
		o.Executor = opts.Executor
		o.Stream = opts.StreamModel
		o.RequestProcessors = []flow.RequestProcessor{flow.NewInstructionsProcessor(def.Directive)}
	})

	return &Router{def: def, loop: loop, executor: opts.Executor}, nil
}

// Name returns the handler name used as event author.
func (r *Router) Name() string { return r.def.Name }

// Route runs triage for text.
//
// The classification is committed to turn.Support before handoff-requested is
// emitted, so predicates evaluated by the specialist observe this turn's
// issue type. Model failures are returned unchanged (wrapped); a step limit
// hit during triage is treated as an ambiguous classification.
func (r *Router) Route(turn *core.TurnContext, text string) (HandoffDecision, error) {
	turn = turn.WithHandler(r.def.Name)
	conv := flow.NewConversation(text)

	var (
		committed   *core.IssueType
		requested   string
		transferred bool
		reason      = "no classification was committed"
	)

	for !transferred {
		step, err := r.loop.Step(turn, conv)
		if err != nil {
			if errors.Is(err, core.ErrStepLimitExceeded) {
				reason = "triage step limit reached"
				turn.LogWarn("triage.route.step_limit", "turn_id", turn.TurnID, "steps", turn.Limiter.Count())
				break
			}
			return HandoffDecision{}, fmt.Errorf("%s: %w", r.def.Name, err)
		}

		for _, o := range step.Outcomes {
			if o.Err != nil {
				continue
			}

			switch o.Call.Name {
			case capability.SetIssueType:
				t, err := core.ParseIssueType(argString(o.Call.Args, "issue_type"))
				if err != nil {
					continue
				}
				committed = t.Ptr()
				if err := turn.EmitEvent(core.NewClassificationEvent(r.def.Name, t)); err != nil {
					return HandoffDecision{}, err
				}
			case capability.UpdateUserProfile:
				fields := profileFields(o.Call.Args)
				if len(fields) == 0 {
					continue
				}
				if err := turn.EmitEvent(core.NewProfileUpdatedEvent(r.def.Name, fields)); err != nil {
					return HandoffDecision{}, err
				}
			case capability.TransferToHandler:
				requested = strings.ToLower(strings.TrimSpace(argString(o.Call.Args, "target")))
				transferred = true
			}
		}

		if step.Final() {
			break
		}
	}

	decision := HandoffDecision{Requested: requested}

	if committed == nil {
		t, err := r.fallback(turn, reason)
		if err != nil {
			return HandoffDecision{}, err
		}
		committed = &t
		decision.Fallback = fmt.Errorf("%w: %s", ErrClassificationAmbiguous, reason)
	}

	decision.Target = *committed

	if requested != "" && requested != string(decision.Target) {
		turn.LogWarn("triage.route.transfer_mismatch",
			"turn_id", turn.TurnID,
			"requested", requested,
			"committed", decision.Target,
		)
	}

	if err := turn.EmitEvent(core.NewHandoffRequestedEvent(r.def.Name, string(decision.Target))); err != nil {
		return HandoffDecision{}, err
	}

	turn.LogInfo("triage.route.decided",
		"turn_id", turn.TurnID,
		"target", decision.Target,
		"ambiguous", decision.Ambiguous(),
		"steps", turn.Limiter.Count(),
	)

	return decision, nil
}

// fallback commits the general classification through set_issue_type so the
// write follows the same path and event sequence as a model-issued call.
func (r *Router) fallback(turn *core.TurnContext, reason string) (core.IssueType, error) {
	turn.LogInfo("triage.route.fallback", "turn_id", turn.TurnID, "reason", reason)

	if err := turn.EmitEvent(core.NewClassificationAmbiguousEvent(r.def.Name, reason)); err != nil {
		return "", err
	}

	call := model.Call(capability.SetIssueType, map[string]any{"issue_type": string(core.IssueTypeGeneral)})
	call.ID = core.NewID()

	outcomes, err := r.executor.Execute(turn, []model.ToolCall{call})
	if err != nil {
		return "", err
	}

	if o := outcomes[0]; o.Err != nil {
		return "", fmt.Errorf("commit fallback classification: %w", o.Err)
	}

	if err := turn.EmitEvent(core.NewClassificationEvent(r.def.Name, core.IssueTypeGeneral)); err != nil {
		return "", err
	}

	return core.IssueTypeGeneral, nil
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// profileFields returns the non-empty, trimmed profile values of an
// update_user_profile call.
func profileFields(args map[string]any) map[string]string {
	out := make(map[string]string, 2)
	for _, key := range []string{"name", "account_id"} {
		if v := strings.TrimSpace(argString(args, key)); v != "" {
			out[key] = v
		}
	}
	return out
}
