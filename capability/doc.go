// Package capability implements the action subsystem: named capabilities with
// a declared input schema, an optional enablement predicate evaluated against
// the shared SupportContext, and an execution function.
//
// The Registry owns gating. Handlers never decide availability themselves:
// ListAvailable filters a handler's bound capabilities by evaluating every
// predicate on a fresh snapshot, and Invoke re-checks the predicate right
// before executing, so a handler cannot force a capability whose predicate is
// false. New context-sensitive policies are added by attaching a predicate to
// a capability rather than by editing routing code.
//
// Error taxonomy (all recoverable; the caller reports them back to the model):
//
//	*NotFoundError             unknown capability name
//	*ValidationError           arguments do not satisfy the input schema (not executed)
//	*CapabilityDisabledError   not bound to the handler or predicate false (not executed)
//	*ExecutionError            the capability ran and returned an error
package capability
