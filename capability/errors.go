package capability

import (
	"errors"
	"fmt"
)

// ErrDuplicateCapability is returned when a name is registered twice.
var ErrDuplicateCapability = errors.New("capability already registered")

// Disabled reasons reported by CapabilityDisabledError.
const (
	ReasonNotBound       = "not bound to handler"
	ReasonPredicateFalse = "enablement predicate evaluated false"
)

// ValidationError reports arguments that do not satisfy the input schema.
// The capability is not executed.
type ValidationError struct {
	Capability string
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("capability %s: invalid arguments: %v", e.Capability, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CapabilityDisabledError reports an invocation the gating rules refused.
// The capability is not executed.
type CapabilityDisabledError struct {
	Capability string
	Handler    string
	Reason     string
}

func (e *CapabilityDisabledError) Error() string {
	return fmt.Sprintf("capability %s is disabled for %s: %s", e.Capability, e.Handler, e.Reason)
}

// NotFoundError reports an unknown capability name.
type NotFoundError struct {
	Capability string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("capability %s not found", e.Capability)
}

// ExecutionError wraps an error returned by a capability implementation.
type ExecutionError struct {
	Capability string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("capability %s failed: %v", e.Capability, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
