package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fara-hq/governor/pkg/action"
)

// Result is the outcome of one execution.
type Result struct {
	Success bool

	// Reason is human-readable free text (command output on success, an
	// error excerpt on failure).
	Reason string

	// Err is a short machine-oriented error label, empty on success.
	Err string

	// TimedOut marks results produced by the per-action deadline.
	TimedOut bool
}

// Executor runs a single action to completion. Execute must respect ctx
// cancellation and terminate its underlying work when the deadline passes.
type Executor interface {
	Execute(ctx context.Context, a *action.Action) Result
}

// Registry maps tools to executors and runs dispatched actions in a
// bounded pool.
type Registry struct {
	defaultTimeout time.Duration
	sem            chan struct{}
	logger         *slog.Logger

	mu        sync.RWMutex
	executors map[string]Executor

	wg sync.WaitGroup
}

// NewRegistry creates a registry allowing at most maxConcurrent in-flight
// executions, each bounded by defaultTimeout unless the action carries its
// own.
func NewRegistry(maxConcurrent int, defaultTimeout time.Duration, logger *slog.Logger) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		defaultTimeout: defaultTimeout,
		sem:            make(chan struct{}, maxConcurrent),
		logger:         logger.With("component", "executor.registry"),
		executors:      make(map[string]Executor),
	}
}

// Register installs an executor for a tool, replacing any previous one.
func (r *Registry) Register(tool string, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[tool] = ex
}

// Has reports whether an executor is registered for the tool.
func (r *Registry) Has(tool string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[tool]
	return ok
}

// Tools returns the registered tool names.
func (r *Registry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]string, 0, len(r.executors))
	for t := range r.executors {
		tools = append(tools, t)
	}
	return tools
}

// Dispatch runs a asynchronously on its tool's executor and delivers the
// outcome through report exactly once. It returns false without running
// anything when no executor is registered for the tool. The action is
// cloned so the executor never shares state with the caller.
func (r *Registry) Dispatch(a *action.Action, report func(Result)) bool {
	r.mu.RLock()
	ex, ok := r.executors[a.Tool]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	run := a.Clone()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		timeout := time.Duration(run.TimeoutSeconds(int(r.defaultTimeout/time.Second))) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		res := r.execute(ctx, ex, run)
		if ctx.Err() == context.DeadlineExceeded {
			res = Result{
				Success:  false,
				Reason:   fmt.Sprintf("timed out after %d seconds", int(timeout.Seconds())),
				Err:      "timeout",
				TimedOut: true,
			}
		}
		report(res)
	}()
	return true
}

// execute isolates executor panics so a misbehaving executor still yields
// exactly one result.
func (r *Registry) execute(ctx context.Context, ex Executor, a *action.Action) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("executor panicked",
				"tool", a.Tool,
				"action_id", a.ID,
				"panic", rec,
			)
			res = Result{Success: false, Reason: fmt.Sprintf("executor panic: %v", rec), Err: "panic"}
		}
	}()
	return ex.Execute(ctx, a)
}

// Wait blocks until all dispatched executions have reported.
func (r *Registry) Wait() {
	r.wg.Wait()
}
