// Package events persists audit events and fans them out to live
// subscribers. Persistence is the source of truth; the in-process fan-out
// exists only to feed streaming consumers and is allowed to drop under
// backpressure (a slow subscriber loses its oldest buffered events and is
// flagged as lagged, it never blocks the emitter or other subscribers).
package events
