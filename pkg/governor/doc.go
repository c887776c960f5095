// Package governor implements the lifecycle coordinator, the single point
// of state mutation for actions. Every transition is an optimistic
// transaction against the store: read, validate, write with the expected
// version, retry on a lost race. The coordinator also acts as the approval
// ticket authority, minting single-use tokens when a decision defers to a
// human and redeeming them with constant-time comparison.
package governor
