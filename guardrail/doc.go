// Package guardrail evaluates drafted final messages before they reach the
// user. An Evaluator returns a Verdict; a tripped verdict makes the specialist
// discard the draft and regenerate.
//
// NoApologies is the built-in policy: it trips whenever the lower-cased draft
// contains one of the banned apology phrases.
package guardrail
