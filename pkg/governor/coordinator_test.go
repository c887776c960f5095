package governor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fara-hq/governor/pkg/action"
	"fara-hq/governor/pkg/events"
	"fara-hq/governor/pkg/executor"
	"fara-hq/governor/pkg/policy"
	"fara-hq/governor/pkg/store"
)

const coordinatorPolicy = `
rules:
  - match: {tool: "http", op: "get"}
    allow: true
    description: "read-only web access"
  - match: {tool: "shell", op: "run", pattern: "rm -rf"}
    deny: true
    description: "destructive shell blocked"
  - match: {tool: "shell", op: "run"}
    require_approval: true
    description: "shell needs a human"
  - match: {tool: "echo", op: "*"}
    allow: true
    description: "echo tool"
`

type fixture struct {
	store    store.Store
	engine   *policy.Engine
	bus      *events.Bus
	registry *executor.Registry
	coord    *Coordinator
}

func newFixture(t *testing.T, registry *executor.Registry) *fixture {
	t.Helper()

	s := store.NewMemoryStore()
	e := policy.NewEngine(nil)
	if err := e.Load([]byte(coordinatorPolicy)); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	b := events.NewBus(s, nil)
	t.Cleanup(b.Close)

	return &fixture{
		store:    s,
		engine:   e,
		bus:      b,
		registry: registry,
		coord:    NewCoordinator(s, e, b, registry, Config{}, nil),
	}
}

func submit(t *testing.T, c *Coordinator, tool, op string, params action.Params) *action.Action {
	t.Helper()
	a, err := c.Submit(context.Background(), SubmitRequest{
		AgentID:   "agent-1",
		Tool:      tool,
		Operation: op,
		Params:    params,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return a
}

func waitForStatus(t *testing.T, c *Coordinator, id string, want action.Status) *action.Action {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		a, err := c.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if a.Status == want {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
	a, _ := c.Get(context.Background(), id)
	t.Fatalf("action never reached %s, stuck at %s", want, a.Status)
	return nil
}

func TestSubmit_Allowed(t *testing.T) {
	f := newFixture(t, nil)

	a := submit(t, f.coord, "http", "get", action.Params{"url": "https://example.com"})
	if a.Status != action.StatusAllowed || a.Decision != action.DecisionAllow {
		t.Errorf("unexpected state: %s/%s", a.Status, a.Decision)
	}
	if a.ApprovalToken != "" {
		t.Error("allowed action must not carry a token")
	}
	if a.PolicyVersion != f.engine.Version() {
		t.Errorf("policy version not stamped: %q", a.PolicyVersion)
	}
	if a.Reason != "read-only web access" {
		t.Errorf("unexpected reason: %q", a.Reason)
	}
}

func TestSubmit_Denied(t *testing.T) {
	f := newFixture(t, nil)

	a := submit(t, f.coord, "shell", "run", action.Params{"cmd": "rm -rf /"})
	if a.Status != action.StatusDenied || a.Decision != action.DecisionDeny {
		t.Errorf("unexpected state: %s/%s", a.Status, a.Decision)
	}
}

func TestSubmit_RequiresApprovalMintsToken(t *testing.T) {
	f := newFixture(t, nil)

	a := submit(t, f.coord, "shell", "run", action.Params{"cmd": "ls"})
	if a.Status != action.StatusPendingApproval {
		t.Fatalf("expected pending_approval, got %s", a.Status)
	}
	if len(a.ApprovalToken) < 32 {
		t.Errorf("token too short: %q", a.ApprovalToken)
	}
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t, nil)

	cases := []SubmitRequest{
		{Tool: "shell", Operation: "run"},
		{AgentID: "a", Operation: "run"},
		{AgentID: "a", Tool: "shell"},
	}
	for _, req := range cases {
		_, err := f.coord.Submit(context.Background(), req)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("expected ValidationError for %+v, got %v", req, err)
		}
	}
}

func TestApprove_HappyPathAndSingleUse(t *testing.T) {
	f := newFixture(t, nil)
	a := submit(t, f.coord, "shell", "run", action.Params{"cmd": "ls"})
	token := a.ApprovalToken

	approved, err := f.coord.Approve(context.Background(), a.ID, token, "looks safe")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != action.StatusApproved {
		t.Errorf("expected approved, got %s", approved.Status)
	}
	if approved.ApprovalToken != "" {
		t.Error("token must be cleared on approval")
	}
	if approved.Reason != "looks safe" {
		t.Errorf("unexpected reason: %q", approved.Reason)
	}

	// The token is single-use: a second redemption hits the status guard.
	_, err = f.coord.Approve(context.Background(), a.ID, token, "")
	var nee *NotExecutableError
	if !errors.As(err, &nee) {
		t.Errorf("expected NotExecutableError, got %v", err)
	}
	if nee != nil && nee.Status != action.StatusApproved {
		t.Errorf("error should carry current status, got %s", nee.Status)
	}
}

func TestApprove_InvalidToken(t *testing.T) {
	f := newFixture(t, nil)
	a := submit(t, f.coord, "shell", "run", action.Params{"cmd": "ls"})

	for _, bad := range []string{"", "wrong", a.ApprovalToken + "x"} {
		if _, err := f.coord.Approve(context.Background(), a.ID, bad, ""); err != ErrUnauthorized {
			t.Errorf("token %q: expected ErrUnauthorized, got %v", bad, err)
		}
	}

	got, _ := f.coord.Get(context.Background(), a.ID)
	if got.Status != action.StatusPendingApproval {
		t.Errorf("failed approvals must not change status, got %s", got.Status)
	}
}

func TestDeny_WithToken(t *testing.T) {
	f := newFixture(t, nil)
	a := submit(t, f.coord, "shell", "run", action.Params{"cmd": "ls"})

	denied, err := f.coord.Deny(context.Background(), a.ID, a.ApprovalToken, "too risky")
	if err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	if denied.Status != action.StatusDenied {
		t.Errorf("expected denied, got %s", denied.Status)
	}
	if denied.ApprovalToken != "" {
		t.Error("token must be cleared on denial")
	}
}

func TestApprove_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.coord.Approve(context.Background(), "missing", "tok", ""); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStart_NoExecutorSucceedsImmediately(t *testing.T) {
	f := newFixture(t, nil)
	a := submit(t, f.coord, "http", "get", action.Params{"url": "https://example.com"})

	started, err := f.coord.Start(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.Status != action.StatusSucceeded {
		t.Errorf("expected succeeded, got %s", started.Status)
	}
	if started.Reason != "no executor" {
		t.Errorf("unexpected reason: %q", started.Reason)
	}
}

func TestStart_DispatchesToExecutor(t *testing.T) {
	reg := executor.NewRegistry(2, 5*time.Second, nil)
	reg.Register("echo", funcExecutor(func(ctx context.Context, a *action.Action) executor.Result {
		return executor.Result{Success: true, Reason: "echoed"}
	}))
	f := newFixture(t, reg)

	a := submit(t, f.coord, "echo", "say", action.Params{"msg": "hi"})
	started, err := f.coord.Start(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.Status != action.StatusExecuting {
		t.Errorf("expected executing, got %s", started.Status)
	}

	final := waitForStatus(t, f.coord, a.ID, action.StatusSucceeded)
	if final.Reason != "echoed" {
		t.Errorf("unexpected reason: %q", final.Reason)
	}
}

func TestStart_ExecutorFailure(t *testing.T) {
	reg := executor.NewRegistry(2, 5*time.Second, nil)
	reg.Register("echo", funcExecutor(func(ctx context.Context, a *action.Action) executor.Result {
		return executor.Result{Success: false, Reason: "boom", Err: "boom"}
	}))
	f := newFixture(t, reg)

	a := submit(t, f.coord, "echo", "say", nil)
	if _, err := f.coord.Start(context.Background(), a.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	final := waitForStatus(t, f.coord, a.ID, action.StatusFailed)
	if final.Reason != "boom" {
		t.Errorf("unexpected reason: %q", final.Reason)
	}
}

func TestStart_ExecutorTimeout(t *testing.T) {
	reg := executor.NewRegistry(2, 5*time.Second, nil)
	reg.Register("echo", funcExecutor(func(ctx context.Context, a *action.Action) executor.Result {
		<-ctx.Done()
		return executor.Result{Success: true}
	}))
	f := newFixture(t, reg)

	a, err := f.coord.Submit(context.Background(), SubmitRequest{
		AgentID:   "agent-1",
		Tool:      "echo",
		Operation: "say",
		Context:   action.Context{"timeout": float64(1)},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.coord.Start(context.Background(), a.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitForStatus(t, f.coord, a.ID, action.StatusTimeout)
}

func TestStart_DeniedActionRejected(t *testing.T) {
	f := newFixture(t, nil)
	a := submit(t, f.coord, "shell", "run", action.Params{"cmd": "rm -rf /"})

	_, err := f.coord.Start(context.Background(), a.ID)
	var nee *NotExecutableError
	if !errors.As(err, &nee) {
		t.Fatalf("expected NotExecutableError, got %v", err)
	}
	if nee.Status != action.StatusDenied {
		t.Errorf("error should carry denied, got %s", nee.Status)
	}
}

func TestRecordResult(t *testing.T) {
	reg := executor.NewRegistry(2, 5*time.Second, nil)
	reg.Register("echo", funcExecutor(func(ctx context.Context, a *action.Action) executor.Result {
		// Block long enough for the client to report first.
		time.Sleep(200 * time.Millisecond)
		return executor.Result{Success: true, Reason: "late"}
	}))
	f := newFixture(t, reg)

	a := submit(t, f.coord, "echo", "say", nil)
	if _, err := f.coord.Start(context.Background(), a.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	got, err := f.coord.RecordResult(context.Background(), a.ID, false, "client gave up")
	if err != nil {
		t.Fatalf("record result failed: %v", err)
	}
	if got.Status != action.StatusFailed || got.Reason != "client gave up" {
		t.Errorf("unexpected state: %s %q", got.Status, got.Reason)
	}

	// The late executor report finds a terminal action and is discarded.
	reg.Wait()
	final, _ := f.coord.Get(context.Background(), a.ID)
	if final.Status != action.StatusFailed {
		t.Errorf("late report must not overwrite terminal state, got %s", final.Status)
	}
}

func TestRecordResult_RequiresExecuting(t *testing.T) {
	f := newFixture(t, nil)
	a := submit(t, f.coord, "http", "get", nil)

	_, err := f.coord.RecordResult(context.Background(), a.ID, true, "")
	var nee *NotExecutableError
	if !errors.As(err, &nee) {
		t.Errorf("expected NotExecutableError, got %v", err)
	}
}

func TestReplay(t *testing.T) {
	f := newFixture(t, nil)
	orig, err := f.coord.Submit(context.Background(), SubmitRequest{
		AgentID:   "agent-1",
		Tool:      "http",
		Operation: "get",
		Params:    action.Params{"url": "https://example.com"},
		Context:   action.Context{"env": "prod"},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	replayed, err := f.coord.Replay(context.Background(), orig.ID)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replayed.ID == orig.ID {
		t.Error("replay must create a new action")
	}
	if replayed.Context["replayed_from"] != orig.ID {
		t.Errorf("replayed_from not set: %+v", replayed.Context)
	}
	if replayed.Context["env"] != "prod" {
		t.Error("original context must carry over")
	}
	if replayed.Params["url"] != "https://example.com" {
		t.Error("params must carry over")
	}
}

func TestLifecycle_EventTrail(t *testing.T) {
	f := newFixture(t, nil)
	a := submit(t, f.coord, "shell", "run", action.Params{"cmd": "ls"})

	if _, err := f.coord.Approve(context.Background(), a.ID, a.ApprovalToken, ""); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := f.coord.Start(context.Background(), a.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	evs, err := f.coord.Events(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("events failed: %v", err)
	}
	want := []action.EventType{
		action.EventCreated,
		action.EventDecisionMade,
		action.EventApproved,
		action.EventSucceeded,
	}
	if len(evs) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(evs))
	}
	for i, et := range want {
		if evs[i].EventType != et {
			t.Errorf("event %d: expected %s, got %s", i, et, evs[i].EventType)
		}
	}
}

func TestConcurrentApproval_ExactlyOneWins(t *testing.T) {
	f := newFixture(t, nil)
	a := submit(t, f.coord, "shell", "run", action.Params{"cmd": "ls"})
	token := a.ApprovalToken

	const attempts = 8
	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.coord.Approve(context.Background(), a.ID, token, ""); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	n := 0
	for range successes {
		n++
	}
	if n != 1 {
		t.Errorf("expected exactly one successful approval, got %d", n)
	}
}

// stuckStore loses every optimistic write.
type stuckStore struct {
	store.Store
}

func (s *stuckStore) UpdateAction(ctx context.Context, a *action.Action, expectedVersion int64) (bool, error) {
	return false, nil
}

func TestMutate_RetriesThenConflict(t *testing.T) {
	mem := store.NewMemoryStore()
	e := policy.NewEngine(nil)
	if err := e.Load([]byte(coordinatorPolicy)); err != nil {
		t.Fatal(err)
	}
	b := events.NewBus(mem, nil)
	t.Cleanup(b.Close)

	c := NewCoordinator(&stuckStore{Store: mem}, e, b, nil, Config{}, nil)
	a := submit(t, c, "shell", "run", action.Params{"cmd": "ls"})

	if _, err := c.Approve(context.Background(), a.ID, a.ApprovalToken, ""); err != ErrConflict {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestEvents_MissingAction(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.coord.Events(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// funcExecutor adapts a function to the executor interface for tests.
type funcExecutor func(ctx context.Context, a *action.Action) executor.Result

func (f funcExecutor) Execute(ctx context.Context, a *action.Action) executor.Result {
	return f(ctx, a)
}
