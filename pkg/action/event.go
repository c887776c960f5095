package action

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle event in an action's audit trail.
type EventType string

const (
	EventCreated      EventType = "created"
	EventDecisionMade EventType = "decision_made"
	EventApproved     EventType = "approved"
	EventDenied       EventType = "denied"
	EventStarted      EventType = "started"
	EventSucceeded    EventType = "succeeded"
	EventFailed       EventType = "failed"
	EventTimeout      EventType = "timeout"
)

// Event is one immutable entry in an action's ordered audit trail.
type Event struct {
	ID        string         `json:"id"`
	ActionID  string         `json:"action_id"`
	EventType EventType      `json:"event_type"`
	Meta      map[string]any `json:"meta"`

	// CreatedAt is assigned server-side at insert time.
	CreatedAt time.Time `json:"created_at"`

	// PrevHash and RecordHash link events into a per-action tamper-evident
	// chain when hash chaining is enabled. Empty otherwise.
	PrevHash   string `json:"prev_hash,omitempty"`
	RecordHash string `json:"record_hash,omitempty"`
}

// NewEvent builds an event with a generated ID and a UTC timestamp. Stores
// build their own events at insert time; this constructor serves callers
// that need an event value without a persisted row.
func NewEvent(actionID string, eventType EventType, meta map[string]any) *Event {
	if meta == nil {
		meta = map[string]any{}
	}
	return &Event{
		ID:        uuid.NewString(),
		ActionID:  actionID,
		EventType: eventType,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
}
