// Package authflow orchestrates token acquisition across an ordered list of
// authentication strategies. It resolves the requested modes into a strategy
// sequence, serializes prompts per client/tenant through a Locker, and runs the
// sequence under a per-call deadline, recording every attempt.
package authflow
