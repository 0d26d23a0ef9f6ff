package guardrail

import (
	"context"
	"strings"

	"github.com/hupe1980/supportmesh/core"
)

// Verdict is the outcome of a single guardrail check.
type Verdict struct {
	// Tripped is true when the draft must not be surfaced.
	Tripped bool
	// Rule names the policy that produced the verdict.
	Rule string
	// Matched is the offending phrase, if any. It is never shown to the user.
	Matched string
}

// Evaluator checks a drafted final message. fields is the latest committed
// session snapshot and handler the specialist that produced the draft.
type Evaluator interface {
	Check(ctx context.Context, text string, fields core.SupportFields, handler string) (Verdict, error)
}

// Func adapts an ordinary function to the Evaluator interface.
type Func func(ctx context.Context, text string, fields core.SupportFields, handler string) (Verdict, error)

// Check implements Evaluator.
func (f Func) Check(ctx context.Context, text string, fields core.SupportFields, handler string) (Verdict, error) {
	return f(ctx, text, fields, handler)
}

// RuleNoApologies is the rule name reported by NoApologies.
const RuleNoApologies = "no_apologies"

// RuleEmptyDraft is reported for a blank draft. Blank drafts never reach an
// Evaluator.
const RuleEmptyDraft = "empty_draft"

var bannedApologies = []string{"sorry", "apologize", "apologies", "apologise"}

// BannedApologies returns the phrases NoApologies rejects.
func BannedApologies() []string {
	out := make([]string, len(bannedApologies))
	copy(out, bannedApologies)
	return out
}

// NoApologies trips when the lower-cased text contains any banned phrase.
func NoApologies() Evaluator {
	return Func(func(_ context.Context, text string, _ core.SupportFields, _ string) (Verdict, error) {
		lowered := strings.ToLower(text)
		for _, phrase := range bannedApologies {
			if strings.Contains(lowered, phrase) {
				return Verdict{Tripped: true, Rule: RuleNoApologies, Matched: phrase}, nil
			}
		}
		return Verdict{Rule: RuleNoApologies}, nil
	})
}

// Chain runs evaluators in order and returns the first tripped verdict.
func Chain(evaluators ...Evaluator) Evaluator {
	return Func(func(ctx context.Context, text string, fields core.SupportFields, handler string) (Verdict, error) {
		var last Verdict
		for _, e := range evaluators {
			if e == nil {
				continue
			}
			v, err := e.Check(ctx, text, fields, handler)
			if err != nil {
				return Verdict{}, err
			}
			if v.Tripped {
				return v, nil
			}
			last = v
		}
		return last, nil
	})
}
