// Package middleware contains the HTTP middleware chain for the governor
// API: panic recovery, request IDs, structured request logging, CORS, and
// bearer-token authentication. Handlers are wrapped innermost-first, with
// recovery outermost so every other layer is covered by it.
package middleware
