// Package logging configures the process-wide structured logger on top of
// log/slog. Output format and level come from configuration; components
// attach themselves with logger.With("component", ...).
package logging
