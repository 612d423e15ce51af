// Package toolexecutor registers and executes the structured tools an agent
// session can invoke against a task's backing resources.
//
// Invariants:
// - Tool names are unique within a registry.
// - Arguments are schema-validated before a handler runs.
// - Every execution yields an observation: ok, error, or timeout.
// - Output beyond the configured cap is truncated, never dropped silently.
package toolexecutor
