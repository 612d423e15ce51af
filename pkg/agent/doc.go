// Package agent drives one bounded model/tool conversation per
// (task, rollout) pair as an explicit state machine.
//
// Invariants:
// - Rounds never exceed the configured limit.
// - A session terminates exactly once and emits exactly one result.
// - Tool failures are fed back into the conversation, never session-fatal.
// - Model calls route through a provider behind an explicit retry policy.
package agent
