// Package executor dispatches actions to registered executors keyed by
// tool. Executions run asynchronously in a bounded pool, honour per-action
// timeouts, and report their outcome exactly once. The bundled shell
// executor is a reference implementation; real deployments register their
// own.
package executor
