// Package core provides the foundational domain types and execution contexts
// used by supportmesh. It defines the core abstractions for:
//
//   - SupportContext (the single mutable record shared across a conversation)
//   - Events (ordered, ephemeral orchestration signals consumed by the UI)
//   - TurnContext / ActionContext (scoped execution for one turn and one action call)
//   - StepLimiter (bounded model calls per turn)
//
// The package intentionally keeps routing, gating and generation out of scope,
// exposing small types that every other package shares without import cycles.
package core
