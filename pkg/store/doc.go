// Package store provides durable persistence for actions and their audit
// events behind a single Store interface.
//
// Two production backends are available: an embedded SQLite database and a
// networked PostgreSQL database. Backend selection is configuration-driven;
// if PostgreSQL is unreachable at startup the governor falls back to the
// embedded backend with a warning rather than failing to boot. An in-memory
// backend exists for tests.
//
// Action updates use optimistic concurrency: UpdateAction only writes when
// the stored row still carries the caller's expected version, and bumps the
// version on success. Event appends are best-effort from the caller's
// perspective; the coordinator logs and swallows their failures so an audit
// write can never roll back a state change.
package store
