// Package bench defines the shared data model for benchmark runs: tasks,
// conversation transcripts, tool observations, and terminal results.
//
// Invariants:
// - Tasks are immutable once loaded; identity is the task ID.
// - Transcripts are append-only and owned by a single session.
// - A result is written at most once per (task_id, rollout_index).
package bench
