// Package metrics exposes Prometheus metrics for the governor: HTTP
// request counts and latencies, action lifecycle transitions, execution
// durations, policy evaluations and reloads, and event-stream activity.
// All metrics live in a private registry owned by the Collector and are
// served through the promhttp handler.
package metrics
