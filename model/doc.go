// Package model defines the provider-agnostic generation boundary used by the
// triage router and the specialist handlers.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool call representation (ToolDefinition, ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic testing (MockModel)
//
// Providers (OpenAI, Anthropic, Gemini and the offline heuristic model)
// implement Model in sub-packages so the orchestration layer stays decoupled
// from vendor SDKs.
package model
