package store

import (
	"context"
	"errors"

	"fara-hq/governor/pkg/action"
)

var (
	// ErrDuplicateID is returned by CreateAction when the id already exists.
	ErrDuplicateID = errors.New("action id already exists")

	// ErrNotFound is returned when an action id is not in the store.
	ErrNotFound = errors.New("action not found")
)

// Filter narrows ListActions results. Zero-value fields are ignored.
type Filter struct {
	AgentID string
	Tool    string
	Status  string
}

// Store is the persistence contract for actions and audit events.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateAction inserts a new action. Fails with ErrDuplicateID if the
	// id already exists.
	CreateAction(ctx context.Context, a *action.Action) error

	// UpdateAction writes a only if the stored version equals
	// expectedVersion. On success the stored and in-memory versions are
	// incremented and true is returned. False means the caller lost an
	// optimistic-concurrency race (or the row vanished) and must re-read.
	UpdateAction(ctx context.Context, a *action.Action, expectedVersion int64) (bool, error)

	// GetAction returns the current action or ErrNotFound.
	GetAction(ctx context.Context, id string) (*action.Action, error)

	// ListActions returns actions ordered by created_at descending,
	// paginated by limit/offset and narrowed by f. A non-positive limit
	// returns no rows.
	ListActions(ctx context.Context, limit, offset int, f Filter) ([]*action.Action, error)

	// CountActions returns the total number of stored actions.
	CountActions(ctx context.Context) (int64, error)

	// AppendEvent inserts an audit event row. The event's created_at is
	// assigned at insert time. When hash chaining is enabled the event is
	// linked to its predecessor for the same action.
	AppendEvent(ctx context.Context, actionID string, eventType action.EventType, meta map[string]any) (*action.Event, error)

	// GetEvents returns all events for the action ordered by created_at
	// ascending.
	GetEvents(ctx context.Context, actionID string) ([]*action.Event, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
