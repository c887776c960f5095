package policy

import (
	"fmt"

	"fara-hq/governor/pkg/action"
)

// Document is the parsed form of a policy file.
type Document struct {
	Rules []Rule      `yaml:"rules"`
	Risk  RiskSection `yaml:"risk"`
}

// RiskSection holds the risk classification rules.
type RiskSection struct {
	Rules []RiskRule `yaml:"rules"`
}

// Rule is one ordered entry in the policy. Exactly one of Allow, Deny or
// RequireApproval must be set.
type Rule struct {
	Match           Match  `yaml:"match"`
	Allow           bool   `yaml:"allow"`
	Deny            bool   `yaml:"deny"`
	RequireApproval bool   `yaml:"require_approval"`
	Description     string `yaml:"description"`

	// Risk optionally assigns an intrinsic risk level when this rule is
	// the deciding rule.
	Risk action.RiskLevel `yaml:"risk"`
}

// Effect returns the rule's decision.
func (r *Rule) Effect() action.Decision {
	switch {
	case r.Allow:
		return action.DecisionAllow
	case r.Deny:
		return action.DecisionDeny
	default:
		return action.DecisionRequireApproval
	}
}

// validate rejects rules with zero or multiple effects and bad risk levels.
func (r *Rule) validate(idx int) error {
	n := 0
	for _, set := range []bool{r.Allow, r.Deny, r.RequireApproval} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("rule %d: exactly one of allow, deny, require_approval must be set", idx)
	}
	if r.Risk != "" && !action.ValidRiskLevel(r.Risk) {
		return fmt.Errorf("rule %d: invalid risk level %q", idx, r.Risk)
	}
	return nil
}

// RiskRule assigns a risk level to matching inputs. All risk rules are
// evaluated; the highest matching level wins.
type RiskRule struct {
	When      Match            `yaml:"when"`
	RiskLevel action.RiskLevel `yaml:"risk_level"`
}

func (r *RiskRule) validate(idx int) error {
	if !action.ValidRiskLevel(r.RiskLevel) {
		return fmt.Errorf("risk rule %d: invalid risk level %q", idx, r.RiskLevel)
	}
	return nil
}

// Match is the shared pattern grammar of rules and risk rules. Tool and Op
// support the "*" wildcard; Pattern is a substring test against the
// canonical JSON of the action params; AmountGT/AmountLT compare the
// numeric "amount" param; Where holds arbitrary equality predicates checked
// against params first, then context. A match with no fields set matches
// every input.
type Match struct {
	Tool    string `yaml:"tool"`
	Op      string `yaml:"op"`
	Pattern string `yaml:"pattern"`

	AmountGT *float64 `yaml:"amount_gt"`
	AmountLT *float64 `yaml:"amount_lt"`

	Where map[string]any `yaml:",inline"`
}

// Result is the outcome of a policy evaluation.
type Result struct {
	Decision  action.Decision
	Reason    string
	RiskLevel action.RiskLevel
}
