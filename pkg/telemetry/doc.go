// Package telemetry groups the observability subsystems: structured
// logging (log/slog), Prometheus metrics, and health checking. Each lives
// in its own subpackage and is wired together at server startup.
package telemetry
