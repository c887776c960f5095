package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fara-hq/governor/pkg/action"
)

// funcExecutor adapts a plain function to the Executor interface.
type funcExecutor func(ctx context.Context, a *action.Action) Result

func (f funcExecutor) Execute(ctx context.Context, a *action.Action) Result {
	return f(ctx, a)
}

func awaitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("executor never reported")
	}
	return Result{}
}

func TestRegistry_DispatchReportsOnce(t *testing.T) {
	r := NewRegistry(4, time.Second, nil)
	r.Register("echo", funcExecutor(func(ctx context.Context, a *action.Action) Result {
		return Result{Success: true, Reason: "done"}
	}))

	results := make(chan Result, 2)
	a := action.New("agent-1", "echo", "run", nil, nil)
	if !r.Dispatch(a, func(res Result) { results <- res }) {
		t.Fatal("expected dispatch to find an executor")
	}

	res := awaitResult(t, results)
	if !res.Success || res.Reason != "done" {
		t.Errorf("unexpected result: %+v", res)
	}

	r.Wait()
	select {
	case extra := <-results:
		t.Errorf("second report received: %+v", extra)
	default:
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry(4, time.Second, nil)
	a := action.New("agent-1", "unknown", "run", nil, nil)
	if r.Dispatch(a, func(Result) { t.Error("report must not fire") }) {
		t.Error("dispatch should refuse unknown tools")
	}
}

func TestRegistry_TimeoutFromContext(t *testing.T) {
	r := NewRegistry(4, 10*time.Second, nil)
	r.Register("slow", funcExecutor(func(ctx context.Context, a *action.Action) Result {
		<-ctx.Done()
		return Result{Success: true, Reason: "should be overridden"}
	}))

	results := make(chan Result, 1)
	a := action.New("agent-1", "slow", "run", nil, action.Context{"timeout": float64(1)})
	r.Dispatch(a, func(res Result) { results <- res })

	res := awaitResult(t, results)
	if res.Success || !res.TimedOut || res.Err != "timeout" {
		t.Errorf("expected timeout result, got %+v", res)
	}
}

func TestRegistry_PanicBecomesFailure(t *testing.T) {
	r := NewRegistry(4, time.Second, nil)
	r.Register("boom", funcExecutor(func(ctx context.Context, a *action.Action) Result {
		panic("kaboom")
	}))

	results := make(chan Result, 1)
	r.Dispatch(action.New("agent-1", "boom", "run", nil, nil), func(res Result) { results <- res })

	res := awaitResult(t, results)
	if res.Success || res.Err != "panic" {
		t.Errorf("expected panic failure, got %+v", res)
	}
}

func TestRegistry_BoundedConcurrency(t *testing.T) {
	r := NewRegistry(2, 5*time.Second, nil)

	var current, peak int64
	var mu sync.Mutex
	gate := make(chan struct{})

	r.Register("work", funcExecutor(func(ctx context.Context, a *action.Action) Result {
		n := atomic.AddInt64(&current, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		<-gate
		atomic.AddInt64(&current, -1)
		return Result{Success: true}
	}))

	done := make(chan Result, 5)
	for i := 0; i < 5; i++ {
		r.Dispatch(action.New("agent-1", "work", "run", nil, nil), func(res Result) { done <- res })
	}

	// Let the pool fill, then release everything.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	for i := 0; i < 5; i++ {
		awaitResult(t, done)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("expected at most 2 concurrent executions, saw %d", peak)
	}
}

func TestShell_Success(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := action.New("agent-1", "shell", "run", action.Params{"cmd": "echo hello"}, nil)
	res := Shell{}.Execute(ctx, a)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Reason != "hello" {
		t.Errorf("expected trimmed stdout, got %q", res.Reason)
	}
}

func TestShell_FailureCarriesStderr(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := action.New("agent-1", "shell", "run", action.Params{"cmd": "echo oops >&2; exit 3"}, nil)
	res := Shell{}.Execute(ctx, a)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Reason != "oops" {
		t.Errorf("expected stderr excerpt, got %q", res.Reason)
	}
}

func TestShell_MissingCmd(t *testing.T) {
	a := action.New("agent-1", "shell", "run", nil, nil)
	res := Shell{}.Execute(context.Background(), a)
	if res.Success || res.Err != "missing cmd" {
		t.Errorf("expected missing cmd failure, got %+v", res)
	}
}
