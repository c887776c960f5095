// Package health implements liveness and readiness checking. Liveness is
// a constant "the process is up" answer; readiness runs registered
// component checks (store connectivity, policy loaded) concurrently and
// aggregates them.
package health
