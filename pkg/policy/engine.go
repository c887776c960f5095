package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"fara-hq/governor/pkg/action"
)

// snapshot is one immutable loaded policy. Evaluations run against a
// snapshot obtained with a single atomic load, so a concurrent reload can
// never produce a torn read.
type snapshot struct {
	doc     *Document
	version string
	source  string
}

// Engine evaluates actions against the currently loaded policy document.
// It is safe for concurrent use; Load swaps the policy atomically.
type Engine struct {
	current atomic.Pointer[snapshot]
	logger  *slog.Logger
}

// NewEngine returns an engine with an empty policy (every evaluation denies
// until Load succeeds).
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger.With("component", "policy.engine")}
	e.current.Store(&snapshot{doc: &Document{}, version: "empty"})
	return e
}

// Load parses and validates source and, on success, swaps it in as the
// active policy. On any error the previous policy stays active.
func (e *Engine) Load(source []byte) error {
	var doc Document
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	for i := range doc.Rules {
		if err := doc.Rules[i].validate(i); err != nil {
			return fmt.Errorf("invalid policy: %w", err)
		}
	}
	for i := range doc.Risk.Rules {
		if err := doc.Risk.Rules[i].validate(i); err != nil {
			return fmt.Errorf("invalid policy: %w", err)
		}
	}

	sum := sha256.Sum256(source)
	snap := &snapshot{
		doc:     &doc,
		version: hex.EncodeToString(sum[:])[:16],
		source:  string(source),
	}
	e.current.Store(snap)
	e.logger.Info("policy loaded",
		"version", snap.version,
		"rules", len(doc.Rules),
		"risk_rules", len(doc.Risk.Rules),
	)
	return nil
}

// LoadFile reads and loads the policy at path.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}
	return e.Load(data)
}

// Version returns the content hash of the active policy.
func (e *Engine) Version() string {
	return e.current.Load().version
}

// RuleCount returns the number of decision rules in the active policy.
func (e *Engine) RuleCount() int {
	return len(e.current.Load().doc.Rules)
}

// RiskRuleCount returns the number of risk rules in the active policy.
func (e *Engine) RiskRuleCount() int {
	return len(e.current.Load().doc.Risk.Rules)
}

// Source returns the raw text of the active policy.
func (e *Engine) Source() string {
	return e.current.Load().source
}

// Evaluate decides an action. Risk rules run first and the highest matching
// level wins; the first matching decision rule in document order supplies
// the effect; with no match the result is a deny. An allow at high risk is
// promoted to require_approval.
func (e *Engine) Evaluate(tool, op string, params action.Params, ctx action.Context) Result {
	snap := e.current.Load()
	in := newInput(tool, op, params, ctx)

	risk := action.RiskLow
	for i := range snap.doc.Risk.Rules {
		rr := &snap.doc.Risk.Rules[i]
		if rr.When.matches(in) {
			risk = risk.Max(rr.RiskLevel)
		}
	}

	for i := range snap.doc.Rules {
		rule := &snap.doc.Rules[i]
		if !rule.Match.matches(in) {
			continue
		}
		if rule.Risk != "" {
			risk = risk.Max(rule.Risk)
		}
		decision := rule.Effect()
		reason := rule.Description
		if reason == "" {
			reason = fmt.Sprintf("matched rule %d", i)
		}
		if decision == action.DecisionAllow && risk == action.RiskHigh {
			return Result{
				Decision:  action.DecisionRequireApproval,
				Reason:    reason + " (elevated: high risk)",
				RiskLevel: risk,
			}
		}
		return Result{Decision: decision, Reason: reason, RiskLevel: risk}
	}

	return Result{
		Decision:  action.DecisionDeny,
		Reason:    "no matching policy rule",
		RiskLevel: risk,
	}
}
