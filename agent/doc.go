// Package agent contains the specialist handlers that answer a routed turn.
//
// The package focuses on three concerns:
//
//  1. The directive catalog (Catalog), embedded as YAML and overridable
//  2. The Specialist handler and its guardrail retry state machine
//  3. The closed Set of specialists keyed by core.IssueType
//
// Execution Model:
//   - The runner hands a *core.TurnContext to Specialist.Handle
//   - Each model step goes through flow.Loop, so capability availability is
//     recomputed from the latest SupportContext on every step
//   - A draft final message is checked by the guardrail before any text is
//     emitted; rejected drafts are regenerated up to the retry bound
package agent
