package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fara-hq/governor/pkg/action"
)

// MemoryStore implements Store using in-process maps. It is intended for
// tests and exercises the same optimistic-locking semantics as the durable
// backends.
type MemoryStore struct {
	mu        sync.RWMutex
	actions   map[string]*action.Action
	events    map[string][]*action.Event
	hashChain bool

	// clock lets tests inject deterministic event timestamps.
	clock func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions: make(map[string]*action.Action),
		events:  make(map[string][]*action.Event),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// NewMemoryStoreWithHashChain creates an in-memory store that links events
// into per-action hash chains.
func NewMemoryStoreWithHashChain() *MemoryStore {
	s := NewMemoryStore()
	s.hashChain = true
	return s
}

// CreateAction inserts a new action.
func (s *MemoryStore) CreateAction(ctx context.Context, a *action.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actions[a.ID]; exists {
		return ErrDuplicateID
	}
	s.actions[a.ID] = a.Clone()
	return nil
}

// UpdateAction writes a guarded by the expected version.
func (s *MemoryStore) UpdateAction(ctx context.Context, a *action.Action, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.actions[a.ID]
	if !exists || stored.Version != expectedVersion {
		return false, nil
	}

	cp := a.Clone()
	cp.Version = expectedVersion + 1
	s.actions[a.ID] = cp
	a.Version = cp.Version
	return true, nil
}

// GetAction returns a copy of the action or ErrNotFound.
func (s *MemoryStore) GetAction(ctx context.Context, id string) (*action.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.actions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

// ListActions returns filtered actions ordered by created_at descending.
func (s *MemoryStore) ListActions(ctx context.Context, limit, offset int, f Filter) ([]*action.Action, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*action.Action
	for _, a := range s.actions {
		if f.AgentID != "" && a.AgentID != f.AgentID {
			continue
		}
		if f.Tool != "" && a.Tool != f.Tool {
			continue
		}
		if f.Status != "" && string(a.Status) != f.Status {
			continue
		}
		results = append(results, a.Clone())
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if offset >= len(results) {
		return nil, nil
	}
	results = results[offset:]
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// CountActions returns the total number of actions.
func (s *MemoryStore) CountActions(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.actions)), nil
}

// AppendEvent appends an audit event with a server-assigned timestamp.
func (s *MemoryStore) AppendEvent(ctx context.Context, actionID string, eventType action.EventType, meta map[string]any) (*action.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta == nil {
		meta = map[string]any{}
	}
	e := &action.Event{
		ID:        uuid.NewString(),
		ActionID:  actionID,
		EventType: eventType,
		Meta:      meta,
		CreatedAt: s.clock(),
	}

	if s.hashChain {
		prev := ""
		if chain := s.events[actionID]; len(chain) > 0 {
			prev = chain[len(chain)-1].RecordHash
		}
		e.PrevHash = prev
		e.RecordHash = chainHash(prev, e)
	}

	s.events[actionID] = append(s.events[actionID], e)
	return e, nil
}

// GetEvents returns all events for the action in append order.
func (s *MemoryStore) GetEvents(ctx context.Context, actionID string) ([]*action.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[actionID]
	out := make([]*action.Event, len(events))
	copy(out, events)
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
