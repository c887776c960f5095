// Package server exposes the governor over HTTP: action submission and
// lifecycle operations, the live event stream, policy introspection, and
// the operational endpoints (health, readiness, metrics). All handlers
// delegate state changes to the coordinator; the server owns only
// transport concerns.
package server
