// Package session keeps the transcript of a conversation: one TurnRecord per
// processed turn with its input, routing decision, emitted events, outcome
// and the SupportContext snapshot taken when the turn terminated.
//
// The Store interface lets the wiring layer choose a backend; InMemoryStore
// is the volatile default. Records are cloned on the way in and out so
// callers never share mutable state with the store.
package session
