// Package rollout fans a task list out into independent agent sessions,
// schedules them across a bounded worker pool, and persists each terminal
// result exactly once.
//
// Invariants:
// - Exactly one result file per attempted (task_id, rollout_index).
// - Pairs with an existing result are skipped, making reruns resumable.
// - A failed session never aborts the run.
package rollout
