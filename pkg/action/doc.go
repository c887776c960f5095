// Package action defines the core data model of the governor: the Action
// entity, its lifecycle state machine, and the append-only audit events
// that record every transition.
//
// An Action represents a single proposed side-effecting operation submitted
// by an agent. It moves through the lifecycle:
//
//	pending_decision -> allowed | denied | pending_approval
//	pending_approval -> approved | denied
//	allowed/approved -> executing -> succeeded | failed | timeout
//
// Statuses denied, succeeded, failed and timeout are terminal; once an
// action reaches one of them no further status, decision or approval-token
// writes are permitted.
package action
