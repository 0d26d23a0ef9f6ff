// Package runner implements the orchestration loop of supportmesh.
//
// The Runner drives exactly one execution per user turn: it invokes the
// triage router, hands the turn to the selected specialist and forwards every
// emitted core.Event, in emission order, to the caller.
//
// # Responsibilities
//   - Turn serialization (a new turn starts only after the previous stream closed)
//   - Empty input filtering (skipped, never routed)
//   - Event forwarding and transcript recording (session.Store)
//   - Failure signalling via a turn-failed event plus the error channel
//
// Turns run detached from caller cancellation: a cancelled caller stops
// receiving events, but the in-flight turn still reaches a terminal state and
// is recorded.
package runner
