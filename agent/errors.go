package agent

import (
	"errors"
	"fmt"
)

// ErrMaxStepsExceeded is returned when a handler needs more model steps than
// allowed for one turn.
var ErrMaxStepsExceeded = errors.New("maximum model steps exceeded")

// GuardrailExhaustedError reports that every draft of a turn was rejected.
// No final message was emitted.
type GuardrailExhaustedError struct {
	Handler  string
	Rule     string
	Attempts int
}

func (e *GuardrailExhaustedError) Error() string {
	return fmt.Sprintf("guardrail %s rejected all %d drafts from %s", e.Rule, e.Attempts, e.Handler)
}
