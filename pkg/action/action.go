package action

import (
	"time"

	"github.com/google/uuid"
)

// Decision is the policy engine's verdict on an action.
type Decision string

const (
	// DecisionAllow permits the action to execute without human review.
	DecisionAllow Decision = "allow"

	// DecisionDeny rejects the action.
	DecisionDeny Decision = "deny"

	// DecisionRequireApproval defers the action to a human approver.
	DecisionRequireApproval Decision = "require_approval"
)

// Status is the lifecycle state of an action.
type Status string

const (
	StatusPendingDecision Status = "pending_decision"
	StatusAllowed         Status = "allowed"
	StatusDenied          Status = "denied"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusExecuting       Status = "executing"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusTimeout         Status = "timeout"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDenied, StatusSucceeded, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next. pending_decision is resolved synchronously inside submit and is
// never observed externally, but the edge is encoded here so the
// coordinator validates every write through one table.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPendingDecision:
		return next == StatusAllowed || next == StatusDenied || next == StatusPendingApproval
	case StatusPendingApproval:
		return next == StatusApproved || next == StatusDenied
	case StatusAllowed, StatusApproved:
		// Direct jump to succeeded covers the no-executor case.
		return next == StatusExecuting || next == StatusSucceeded
	case StatusExecuting:
		return next == StatusSucceeded || next == StatusFailed || next == StatusTimeout
	}
	return false
}

// RiskLevel classifies how dangerous an action is. High risk always
// elevates an allow decision to require_approval.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// rank orders risk levels so the highest matching risk rule wins.
func (r RiskLevel) rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	}
	return 0
}

// Max returns the higher of two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// ValidRiskLevel reports whether r is one of low, medium, high.
func ValidRiskLevel(r RiskLevel) bool {
	return r.rank() > 0
}

// Params is the request-specific payload of an action. Values are
// arbitrary JSON-encodable data supplied by the agent.
type Params map[string]any

// Context is ancillary metadata supplied alongside an action.
type Context map[string]any

// Action is a single proposed side-effecting operation and its complete
// lifecycle record.
type Action struct {
	// ID is an opaque unique identifier (UUID).
	ID string `json:"id"`

	// AgentID identifies the submitting agent. It is a caller-supplied
	// label, not an authenticated identity.
	AgentID string `json:"agent_id"`

	// Tool is the logical capability class (e.g. "shell", "http").
	Tool string `json:"tool"`

	// Operation is the verb within the tool (e.g. "run", "get").
	Operation string `json:"operation"`

	Params  Params  `json:"params"`
	Context Context `json:"context"`

	// Decision is the policy verdict; empty until submit resolves it.
	Decision Decision `json:"decision,omitempty"`

	Status Status `json:"status"`

	// Reason is human-readable free text explaining the current status.
	Reason string `json:"reason,omitempty"`

	RiskLevel RiskLevel `json:"risk_level,omitempty"`

	// ApprovalToken is the single-use token minted when the action enters
	// pending_approval. Non-empty iff Status == pending_approval.
	ApprovalToken string `json:"approval_token,omitempty"`

	// PolicyVersion is the content hash of the policy that decided this
	// action, stamped at submit time for audit.
	PolicyVersion string `json:"policy_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version is the optimistic-concurrency counter. It strictly
	// increases on every persisted mutation.
	Version int64 `json:"-"`
}

// New builds a fresh action in pending_decision with a generated UUID and
// UTC timestamps.
func New(agentID, tool, operation string, params Params, ctx Context) *Action {
	now := time.Now().UTC()
	if params == nil {
		params = Params{}
	}
	if ctx == nil {
		ctx = Context{}
	}
	return &Action{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Tool:      tool,
		Operation: operation,
		Params:    params,
		Context:   ctx,
		Status:    StatusPendingDecision,
		RiskLevel: RiskLow,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// Clone returns a deep-enough copy for safe concurrent mutation: the maps
// are copied one level deep, which is sufficient because the coordinator
// never mutates nested values in place.
func (a *Action) Clone() *Action {
	cp := *a
	cp.Params = make(Params, len(a.Params))
	for k, v := range a.Params {
		cp.Params[k] = v
	}
	cp.Context = make(Context, len(a.Context))
	for k, v := range a.Context {
		cp.Context[k] = v
	}
	return &cp
}

// TimeoutSeconds returns the per-action executor timeout from the context
// ("timeout" key, seconds) or def when absent or not a positive number.
func (a *Action) TimeoutSeconds(def int) int {
	v, ok := a.Context["timeout"]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return int(n)
		}
	case int:
		if n > 0 {
			return n
		}
	}
	return def
}
