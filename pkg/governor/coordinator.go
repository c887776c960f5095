package governor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fara-hq/governor/pkg/action"
	"fara-hq/governor/pkg/events"
	"fara-hq/governor/pkg/executor"
	"fara-hq/governor/pkg/policy"
	"fara-hq/governor/pkg/store"
)

// Metrics receives lifecycle observations from the coordinator. The
// telemetry collector implements it; a nil Metrics disables observation.
type Metrics interface {
	PolicyEvaluated(decision string)
	ActionTransitioned(status, tool string)
	ExecutionFinished(tool, operation string, seconds float64)
}

// Config tunes coordinator behavior.
type Config struct {
	// MaxRetries bounds the optimistic-lock retry loop. Default: 3.
	MaxRetries int
}

// Coordinator is the single point of state mutation for actions.
type Coordinator struct {
	store    store.Store
	engine   *policy.Engine
	bus      *events.Bus
	registry *executor.Registry
	logger   *slog.Logger
	metrics  Metrics
	config   Config

	// starts tracks dispatch times per action for the duration metric.
	starts sync.Map
}

// NewCoordinator wires a coordinator. registry may be nil when the
// deployment has no server-side executors.
func NewCoordinator(s store.Store, e *policy.Engine, b *events.Bus, r *executor.Registry, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.MaxRetries < 3 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    s,
		engine:   e,
		bus:      b,
		registry: r,
		logger:   logger.With("component", "governor.coordinator"),
		config:   cfg,
	}
}

// SetMetrics installs the metrics sink. Call before serving traffic.
func (c *Coordinator) SetMetrics(m Metrics) {
	c.metrics = m
}

// SubmitRequest carries the fields of a new action proposal.
type SubmitRequest struct {
	AgentID   string
	Tool      string
	Operation string
	Params    action.Params
	Context   action.Context
}

func (r *SubmitRequest) validate() error {
	if r.AgentID == "" {
		return &ValidationError{Field: "agent_id", Message: "must not be empty"}
	}
	if r.Tool == "" {
		return &ValidationError{Field: "tool", Message: "must not be empty"}
	}
	if r.Operation == "" {
		return &ValidationError{Field: "operation", Message: "must not be empty"}
	}
	return nil
}

// Submit evaluates a proposed action against the active policy, persists
// it in its decided state, and emits the created and decision_made events.
// pending_decision is never observable: the decision happens synchronously
// before the first write.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*action.Action, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	a := action.New(req.AgentID, req.Tool, req.Operation, req.Params, req.Context)

	res := c.engine.Evaluate(a.Tool, a.Operation, a.Params, a.Context)
	if c.metrics != nil {
		c.metrics.PolicyEvaluated(string(res.Decision))
	}

	a.Decision = res.Decision
	a.Reason = res.Reason
	a.RiskLevel = res.RiskLevel
	a.PolicyVersion = c.engine.Version()

	switch res.Decision {
	case action.DecisionAllow:
		a.Status = action.StatusAllowed
	case action.DecisionDeny:
		a.Status = action.StatusDenied
	case action.DecisionRequireApproval:
		token, err := mintToken()
		if err != nil {
			return nil, err
		}
		a.ApprovalToken = token
		a.Status = action.StatusPendingApproval
	}

	if err := c.store.CreateAction(ctx, a); err != nil {
		return nil, err
	}
	c.observe(a)

	c.bus.Emit(ctx, a.ID, action.EventCreated, map[string]any{
		"agent_id":  a.AgentID,
		"tool":      a.Tool,
		"operation": a.Operation,
	})
	c.bus.Emit(ctx, a.ID, action.EventDecisionMade, map[string]any{
		"decision":       string(a.Decision),
		"reason":         a.Reason,
		"risk_level":     string(a.RiskLevel),
		"policy_version": a.PolicyVersion,
	})

	c.logger.Info("action submitted",
		"action_id", a.ID,
		"agent_id", a.AgentID,
		"tool", a.Tool,
		"operation", a.Operation,
		"decision", a.Decision,
		"status", a.Status,
	)
	return a, nil
}

// Approve redeems an approval token. The token is cleared in the same
// write that advances the status, so it can never be redeemed twice.
func (c *Coordinator) Approve(ctx context.Context, id, token, reason string) (*action.Action, error) {
	if reason == "" {
		reason = "approved by human"
	}
	a, err := c.mutate(ctx, id, func(a *action.Action) error {
		if a.Status != action.StatusPendingApproval {
			return &NotExecutableError{Status: a.Status}
		}
		if !tokenMatches(a.ApprovalToken, token) {
			return ErrUnauthorized
		}
		a.Status = action.StatusApproved
		a.Decision = action.DecisionAllow
		a.ApprovalToken = ""
		a.Reason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.observe(a)
	c.bus.Emit(ctx, a.ID, action.EventApproved, map[string]any{"reason": a.Reason})
	return a, nil
}

// Deny rejects a pending approval. Like Approve it requires the valid
// token and consumes it.
func (c *Coordinator) Deny(ctx context.Context, id, token, reason string) (*action.Action, error) {
	if reason == "" {
		reason = "denied by human"
	}
	a, err := c.mutate(ctx, id, func(a *action.Action) error {
		if a.Status != action.StatusPendingApproval {
			return &NotExecutableError{Status: a.Status}
		}
		if !tokenMatches(a.ApprovalToken, token) {
			return ErrUnauthorized
		}
		a.Status = action.StatusDenied
		a.Decision = action.DecisionDeny
		a.ApprovalToken = ""
		a.Reason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.observe(a)
	c.bus.Emit(ctx, a.ID, action.EventDenied, map[string]any{"reason": a.Reason})
	return a, nil
}

// Start moves an allowed or approved action into execution. With a
// registered executor the action transitions to executing and runs
// asynchronously; without one it completes immediately so the audit trail
// still closes.
func (c *Coordinator) Start(ctx context.Context, id string) (*action.Action, error) {
	var dispatched bool
	a, err := c.mutate(ctx, id, func(a *action.Action) error {
		if a.Status != action.StatusAllowed && a.Status != action.StatusApproved {
			return &NotExecutableError{Status: a.Status}
		}
		if c.registry != nil && c.registry.Has(a.Tool) {
			a.Status = action.StatusExecuting
			a.Reason = "executing"
			dispatched = true
		} else {
			a.Status = action.StatusSucceeded
			a.Reason = "no executor"
			dispatched = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.observe(a)

	if !dispatched {
		c.bus.Emit(ctx, a.ID, action.EventSucceeded, map[string]any{"reason": a.Reason})
		return a, nil
	}

	c.bus.Emit(ctx, a.ID, action.EventStarted, nil)
	c.starts.Store(a.ID, time.Now())
	c.registry.Dispatch(a, func(res executor.Result) {
		c.finishExecution(a.ID, a.Tool, a.Operation, res)
	})
	return a, nil
}

// finishExecution records the executor's one report. It runs on the
// executor's goroutine after the originating request may be long gone, so
// it uses a background context.
func (c *Coordinator) finishExecution(id, tool, operation string, res executor.Result) {
	ctx := context.Background()

	status := action.StatusSucceeded
	eventType := action.EventSucceeded
	switch {
	case res.TimedOut:
		status = action.StatusTimeout
		eventType = action.EventTimeout
	case !res.Success:
		status = action.StatusFailed
		eventType = action.EventFailed
	}

	a, err := c.mutate(ctx, id, func(a *action.Action) error {
		if a.Status != action.StatusExecuting {
			return &NotExecutableError{Status: a.Status}
		}
		a.Status = status
		a.Reason = res.Reason
		return nil
	})
	if err != nil {
		c.logger.Error("failed to record execution result",
			"action_id", id,
			"status", status,
			"error", err,
		)
		return
	}
	c.observe(a)

	meta := map[string]any{"reason": res.Reason}
	if res.Err != "" {
		meta["error"] = res.Err
	}
	c.bus.Emit(ctx, a.ID, eventType, meta)

	if v, ok := c.starts.LoadAndDelete(id); ok && c.metrics != nil {
		c.metrics.ExecutionFinished(tool, operation, time.Since(v.(time.Time)).Seconds())
	}
}

// RecordResult records a client-reported outcome for an executing action.
func (c *Coordinator) RecordResult(ctx context.Context, id string, success bool, errMsg string) (*action.Action, error) {
	status := action.StatusSucceeded
	eventType := action.EventSucceeded
	reason := "execution completed"
	if !success {
		status = action.StatusFailed
		eventType = action.EventFailed
		reason = errMsg
		if reason == "" {
			reason = "execution failed"
		}
	}

	a, err := c.mutate(ctx, id, func(a *action.Action) error {
		if a.Status != action.StatusExecuting {
			return &NotExecutableError{Status: a.Status}
		}
		a.Status = status
		a.Reason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.observe(a)

	meta := map[string]any{"reason": a.Reason}
	if !success && errMsg != "" {
		meta["error"] = errMsg
	}
	c.bus.Emit(ctx, a.ID, eventType, meta)
	return a, nil
}

// Replay submits a fresh action copying the original's identity and
// params, with the full original context carried over and replayed_from
// pointing back at the source.
func (c *Coordinator) Replay(ctx context.Context, id string) (*action.Action, error) {
	orig, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	replayCtx := make(action.Context, len(orig.Context)+1)
	for k, v := range orig.Context {
		replayCtx[k] = v
	}
	replayCtx["replayed_from"] = orig.ID

	return c.Submit(ctx, SubmitRequest{
		AgentID:   orig.AgentID,
		Tool:      orig.Tool,
		Operation: orig.Operation,
		Params:    orig.Params,
		Context:   replayCtx,
	})
}

// Get returns an action by ID.
func (c *Coordinator) Get(ctx context.Context, id string) (*action.Action, error) {
	a, err := c.store.GetAction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

// List returns actions matching the filter, newest first.
func (c *Coordinator) List(ctx context.Context, limit, offset int, f store.Filter) ([]*action.Action, error) {
	return c.store.ListActions(ctx, limit, offset, f)
}

// Events returns the ordered audit trail of an action.
func (c *Coordinator) Events(ctx context.Context, id string) ([]*action.Event, error) {
	if _, err := c.Get(ctx, id); err != nil {
		return nil, err
	}
	return c.store.GetEvents(ctx, id)
}

// PolicyVersion returns the version of the active policy.
func (c *Coordinator) PolicyVersion() string {
	return c.engine.Version()
}

// mutate runs one optimistic transaction: read, validate and modify via
// apply, write back with the version observed at read. A lost race retries
// from the read; exhaustion yields ErrConflict.
func (c *Coordinator) mutate(ctx context.Context, id string, apply func(*action.Action) error) (*action.Action, error) {
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		a, err := c.store.GetAction(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}

		expected := a.Version
		if err := apply(a); err != nil {
			return nil, err
		}
		a.UpdatedAt = time.Now().UTC()

		ok, err := c.store.UpdateAction(ctx, a, expected)
		if err != nil {
			return nil, err
		}
		if ok {
			return a, nil
		}
		c.logger.Debug("optimistic lock lost, retrying",
			"action_id", id,
			"attempt", attempt+1,
		)
	}
	return nil, ErrConflict
}

func (c *Coordinator) observe(a *action.Action) {
	if c.metrics != nil {
		c.metrics.ActionTransitioned(string(a.Status), a.Tool)
	}
}
