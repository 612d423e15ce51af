// Package toolserver exposes tool execution to many concurrent agent
// sessions through per-tool bounded worker pools, in process and over HTTP.
//
// Invariants:
// - Concurrent executions of a tool never exceed its configured worker count.
// - A worker slot is released on every exit path: success, error, timeout,
//   or caller cancellation.
// - Unknown tools fail without consuming a slot.
// - Requests beyond the queue bound fail fast instead of deadlocking.
package toolserver
