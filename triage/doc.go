// Package triage implements the entry point of every turn.
//
// The Router runs the triage model with the classification, profile and
// transfer capabilities, commits the classification to the shared
// SupportContext before any handoff, and picks exactly one specialist. When
// nothing was classified the router falls back to the general handler and
// makes the fallback observable with a classification-ambiguous event.
package triage
