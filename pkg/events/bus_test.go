package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"fara-hq/governor/pkg/action"
	"fara-hq/governor/pkg/store"
)

func newTestBus(t *testing.T) (*Bus, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	b := NewBus(s, nil)
	t.Cleanup(b.Close)
	return b, s
}

func createAction(t *testing.T, s store.Store) *action.Action {
	t.Helper()
	a := action.New("agent-1", "shell", "run", nil, nil)
	if err := s.CreateAction(context.Background(), a); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return a
}

func recvEvent(t *testing.T, sub *Subscription) *action.Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestBus_EmitPersistsAndBroadcasts(t *testing.T) {
	b, s := newTestBus(t)
	a := createAction(t, s)

	sub := b.Subscribe(8)
	defer b.Unsubscribe(sub)

	b.Emit(context.Background(), a.ID, action.EventCreated, map[string]any{"tool": "shell"})

	e := recvEvent(t, sub)
	if e.ActionID != a.ID || e.EventType != action.EventCreated {
		t.Errorf("unexpected event: %+v", e)
	}

	stored, err := s.GetEvents(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get events failed: %v", err)
	}
	if len(stored) != 1 || stored[0].EventType != action.EventCreated {
		t.Errorf("event not persisted: %+v", stored)
	}
}

func TestBus_MultipleSubscribersEachReceive(t *testing.T) {
	b, s := newTestBus(t)
	a := createAction(t, s)

	s1 := b.Subscribe(8)
	s2 := b.Subscribe(8)
	defer b.Unsubscribe(s1)
	defer b.Unsubscribe(s2)

	b.Emit(context.Background(), a.ID, action.EventStarted, nil)

	if e := recvEvent(t, s1); e.EventType != action.EventStarted {
		t.Errorf("sub1 got %s", e.EventType)
	}
	if e := recvEvent(t, s2); e.EventType != action.EventStarted {
		t.Errorf("sub2 got %s", e.EventType)
	}
}

func TestBus_SlowSubscriberDropsOldest(t *testing.T) {
	b, s := newTestBus(t)
	a := createAction(t, s)

	sub := b.Subscribe(2)
	defer b.Unsubscribe(sub)

	// Nobody reads: the third emit must evict the first.
	ctx := context.Background()
	b.Emit(ctx, a.ID, action.EventCreated, nil)
	b.Emit(ctx, a.ID, action.EventDecisionMade, nil)
	b.Emit(ctx, a.ID, action.EventStarted, nil)

	if !sub.Lagged() {
		t.Error("expected subscription to be flagged as lagged")
	}
	if sub.Lagged() {
		t.Error("lagged flag should clear after read")
	}

	first := recvEvent(t, sub)
	if first.EventType != action.EventDecisionMade {
		t.Errorf("expected oldest event dropped, got %s first", first.EventType)
	}
	second := recvEvent(t, sub)
	if second.EventType != action.EventStarted {
		t.Errorf("expected started second, got %s", second.EventType)
	}
}

// failingStore rejects every append while delegating everything else.
type failingStore struct {
	store.Store
}

func (f *failingStore) AppendEvent(ctx context.Context, actionID string, eventType action.EventType, meta map[string]any) (*action.Event, error) {
	return nil, errors.New("disk full")
}

func TestBus_EmitSurvivesPersistFailure(t *testing.T) {
	b := NewBus(&failingStore{Store: store.NewMemoryStore()}, nil)
	t.Cleanup(b.Close)

	sub := b.Subscribe(8)
	defer b.Unsubscribe(sub)

	b.Emit(context.Background(), "a-1", action.EventFailed, nil)

	e := recvEvent(t, sub)
	if e.ActionID != "a-1" || e.EventType != action.EventFailed {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b, _ := newTestBus(t)

	sub := b.Subscribe(1)
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestBus_CloseStopsNewSubscriptions(t *testing.T) {
	b, _ := newTestBus(t)
	live := b.Subscribe(1)
	b.Close()

	if _, ok := <-live.Events(); ok {
		t.Error("existing subscription should be closed")
	}

	sub := b.Subscribe(1)
	if _, ok := <-sub.Events(); ok {
		t.Error("post-close subscription should arrive closed")
	}
}

func TestBus_EmitHook(t *testing.T) {
	b, s := newTestBus(t)
	a := createAction(t, s)

	var seen []action.EventType
	b.SetEmitHook(func(et action.EventType) { seen = append(seen, et) })

	b.Emit(context.Background(), a.ID, action.EventCreated, nil)
	b.Emit(context.Background(), a.ID, action.EventSucceeded, nil)

	if len(seen) != 2 || seen[0] != action.EventCreated || seen[1] != action.EventSucceeded {
		t.Errorf("hook saw %v", seen)
	}
}
