package policy

import (
	"testing"

	"fara-hq/governor/pkg/action"
)

const testPolicy = `
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
  - match: {tool: "payments", op: "transfer", amount_gt: 1000}
    require_approval: true
    description: "large transfer"
  - match: {tool: "payments", op: "transfer"}
    allow: true
    description: "small transfer"
  - match: {tool: "db", op: "*", environment: "production"}
    require_approval: true
    description: "production database access"
  - match: {tool: "db"}
    allow: true
    description: "non-production database access"
  - match: {tool: "files", op: "read"}
    allow: true
    description: "file reads"
risk:
  rules:
    - when: {tool: "files", pattern: "/etc/"}
      risk_level: high
    - when: {tool: "shell"}
      risk_level: medium
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(nil)
	if err := e.Load([]byte(testPolicy)); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	return e
}

func TestEngine_FirstMatchWins(t *testing.T) {
	e := newTestEngine(t)

	res := e.Evaluate("shell", "run", action.Params{"command": "rm -rf /tmp/x"}, nil)
	if res.Decision != action.DecisionDeny {
		t.Errorf("expected deny, got %s", res.Decision)
	}
	if res.Reason != "destructive shell blocked" {
		t.Errorf("unexpected reason: %q", res.Reason)
	}

	res = e.Evaluate("shell", "run", action.Params{"command": "ls"}, nil)
	if res.Decision != action.DecisionRequireApproval {
		t.Errorf("expected require_approval, got %s", res.Decision)
	}
	if res.RiskLevel != action.RiskMedium {
		t.Errorf("expected medium risk, got %s", res.RiskLevel)
	}
}

func TestEngine_DefaultDeny(t *testing.T) {
	e := newTestEngine(t)
	res := e.Evaluate("unknown", "op", nil, nil)
	if res.Decision != action.DecisionDeny {
		t.Errorf("expected default deny, got %s", res.Decision)
	}
	if res.Reason != "no matching policy rule" {
		t.Errorf("unexpected reason: %q", res.Reason)
	}
}

func TestEngine_AmountThresholds(t *testing.T) {
	e := newTestEngine(t)

	res := e.Evaluate("payments", "transfer", action.Params{"amount": float64(5000)}, nil)
	if res.Decision != action.DecisionRequireApproval {
		t.Errorf("large transfer: expected require_approval, got %s", res.Decision)
	}

	res = e.Evaluate("payments", "transfer", action.Params{"amount": float64(50)}, nil)
	if res.Decision != action.DecisionAllow {
		t.Errorf("small transfer: expected allow, got %s", res.Decision)
	}

	// Exactly at the threshold is not greater-than.
	res = e.Evaluate("payments", "transfer", action.Params{"amount": float64(1000)}, nil)
	if res.Decision != action.DecisionAllow {
		t.Errorf("boundary transfer: expected allow, got %s", res.Decision)
	}
}

func TestEngine_EqualityPredicates(t *testing.T) {
	e := newTestEngine(t)

	// Predicate satisfied from params.
	res := e.Evaluate("db", "query", action.Params{"environment": "production"}, nil)
	if res.Decision != action.DecisionRequireApproval {
		t.Errorf("expected require_approval for production, got %s", res.Decision)
	}

	// Predicate satisfied from context when params lack the key.
	res = e.Evaluate("db", "query", nil, action.Context{"environment": "production"})
	if res.Decision != action.DecisionRequireApproval {
		t.Errorf("expected require_approval via context, got %s", res.Decision)
	}

	res = e.Evaluate("db", "query", action.Params{"environment": "staging"}, nil)
	if res.Decision != action.DecisionAllow {
		t.Errorf("expected allow for staging, got %s", res.Decision)
	}
}

func TestEngine_HighRiskPromotesAllow(t *testing.T) {
	e := newTestEngine(t)

	res := e.Evaluate("files", "read", action.Params{"path": "/etc/shadow"}, nil)
	if res.Decision != action.DecisionRequireApproval {
		t.Errorf("expected promotion to require_approval, got %s", res.Decision)
	}
	if res.RiskLevel != action.RiskHigh {
		t.Errorf("expected high risk, got %s", res.RiskLevel)
	}

	res = e.Evaluate("files", "read", action.Params{"path": "/home/user/notes.txt"}, nil)
	if res.Decision != action.DecisionAllow {
		t.Errorf("expected allow for benign path, got %s", res.Decision)
	}
	if res.RiskLevel != action.RiskLow {
		t.Errorf("expected low risk, got %s", res.RiskLevel)
	}
}

func TestEngine_WildcardOp(t *testing.T) {
	e := newTestEngine(t)
	for _, op := range []string{"query", "migrate", "drop"} {
		res := e.Evaluate("db", op, action.Params{"environment": "production"}, nil)
		if res.Decision != action.DecisionRequireApproval {
			t.Errorf("op %s: expected require_approval, got %s", op, res.Decision)
		}
	}
}

func TestEngine_VersionIsContentHash(t *testing.T) {
	a := NewEngine(nil)
	b := NewEngine(nil)
	if err := a.Load([]byte(testPolicy)); err != nil {
		t.Fatal(err)
	}
	if err := b.Load([]byte(testPolicy)); err != nil {
		t.Fatal(err)
	}
	if a.Version() != b.Version() {
		t.Error("identical content must yield identical versions")
	}

	if err := b.Load([]byte(testPolicy + "\n# comment\n")); err != nil {
		t.Fatal(err)
	}
	if a.Version() == b.Version() {
		t.Error("different content must yield different versions")
	}
}

func TestEngine_LoadRejectsInvalidRules(t *testing.T) {
	cases := map[string]string{
		"no effect": `
rules:
  - match: {tool: "shell"}
    description: "missing effect"
`,
		"two effects": `
rules:
  - match: {tool: "shell"}
    allow: true
    deny: true
`,
		"bad risk": `
rules:
  - match: {tool: "shell"}
    allow: true
    risk: critical
`,
		"bad risk rule level": `
rules:
  - match: {tool: "shell"}
    allow: true
risk:
  rules:
    - when: {tool: "shell"}
      risk_level: extreme
`,
		"not yaml": `{{{`,
	}

	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			e := NewEngine(nil)
			if err := e.Load([]byte(src)); err == nil {
				t.Error("expected load to fail")
			}
		})
	}
}

func TestEngine_FailedLoadKeepsPreviousPolicy(t *testing.T) {
	e := newTestEngine(t)
	v := e.Version()

	if err := e.Load([]byte("{{{")); err == nil {
		t.Fatal("expected load to fail")
	}
	if e.Version() != v {
		t.Error("failed load must not change the active policy")
	}

	res := e.Evaluate("http", "get", nil, nil)
	if res.Decision != action.DecisionAllow {
		t.Errorf("previous policy should still evaluate, got %s", res.Decision)
	}
}

func TestEngine_EmptyEngineDeniesEverything(t *testing.T) {
	e := NewEngine(nil)
	res := e.Evaluate("http", "get", nil, nil)
	if res.Decision != action.DecisionDeny {
		t.Errorf("expected deny before any policy load, got %s", res.Decision)
	}
}

func TestEngine_PatternMatchesCanonicalParams(t *testing.T) {
	e := NewEngine(nil)
	src := `
rules:
  - match: {tool: "shell", pattern: "\"count\":5"}
    deny: true
    description: "canonical form match"
  - match: {tool: "*"}
    allow: true
    description: "fallthrough"
`
	if err := e.Load([]byte(src)); err != nil {
		t.Fatal(err)
	}

	// JSON-decoded numbers arrive as float64; the canonical form renders
	// integral values without an exponent so the pattern still matches.
	res := e.Evaluate("shell", "run", action.Params{"count": float64(5)}, nil)
	if res.Decision != action.DecisionDeny {
		t.Errorf("expected deny, got %s", res.Decision)
	}

	res = e.Evaluate("shell", "run", action.Params{"count": float64(6)}, nil)
	if res.Decision != action.DecisionAllow {
		t.Errorf("expected allow, got %s", res.Decision)
	}
}
