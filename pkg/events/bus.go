package events

import (
	"context"
	"log/slog"
	"sync"

	"fara-hq/governor/pkg/action"
	"fara-hq/governor/pkg/store"
)

// DefaultBufferSize is the per-subscriber channel capacity used when
// Subscribe is called with a non-positive size.
const DefaultBufferSize = 64

// Subscription is one live consumer of the event stream.
type Subscription struct {
	id uint64
	ch chan *action.Event

	mu     sync.Mutex
	lagged bool
}

// Events returns the channel events are delivered on. The channel is closed
// when the subscription is cancelled or the bus shuts down.
func (s *Subscription) Events() <-chan *action.Event {
	return s.ch
}

// Lagged reports whether the subscriber has lost events to backpressure
// since the last call, and clears the flag.
func (s *Subscription) Lagged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lagged
	s.lagged = false
	return l
}

func (s *Subscription) markLagged() {
	s.mu.Lock()
	s.lagged = true
	s.mu.Unlock()
}

// Bus appends events to the store and broadcasts them to subscribers.
// All methods are safe for concurrent use.
type Bus struct {
	store  store.Store
	logger *slog.Logger

	// onEmit, if set, is invoked once per emitted event (metrics hook).
	onEmit func(eventType action.EventType)

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewBus creates a bus persisting through s.
func NewBus(s store.Store, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		store:  s,
		logger: logger.With("component", "events.bus"),
		subs:   make(map[uint64]*Subscription),
	}
}

// SetEmitHook registers a callback invoked for every emitted event. Must be
// called before the bus is in use.
func (b *Bus) SetEmitHook(fn func(action.EventType)) {
	b.onEmit = fn
}

// Emit records an event for actionID and broadcasts it. A persistence
// failure is logged and the event is still broadcast so live consumers see
// a best-effort view; the action state transition it accompanies has
// already been committed separately.
func (b *Bus) Emit(ctx context.Context, actionID string, eventType action.EventType, meta map[string]any) {
	e, err := b.store.AppendEvent(ctx, actionID, eventType, meta)
	if err != nil {
		b.logger.Error("failed to persist event",
			"action_id", actionID,
			"event_type", eventType,
			"error", err,
		)
		e = action.NewEvent(actionID, eventType, meta)
	}

	if b.onEmit != nil {
		b.onEmit(eventType)
	}
	b.broadcast(e)
}

func (b *Bus) broadcast(e *action.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			// Full buffer: evict the oldest event to make room so the
			// subscriber keeps receiving recent history.
			select {
			case <-sub.ch:
			default:
			}
			sub.markLagged()
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
}

// Subscribe registers a new consumer with the given buffer size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{ch: make(chan *action.Event, buffer)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts down the bus, closing every subscriber channel. Subsequent
// Subscribe calls return an already-closed subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
