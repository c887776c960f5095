// Package policy implements the declarative policy engine that decides
// whether an action may proceed.
//
// A policy document is YAML with an ordered rules list and an optional
// risk.rules list:
//
//	rules:
//	  - match: {tool: "http", op: "*"}
//	    allow: true
//	    description: "read-only web access"
//	  - match: {tool: "shell", op: "run"}
//	    require_approval: true
//	    description: "shell needs a human"
//	risk:
//	  rules:
//	    - when: {tool: "shell", pattern: "rm -rf"}
//	      risk_level: high
//
// Evaluation is deterministic and pure: risk rules are all evaluated and
// the highest matching level wins; the first matching rule in order decides
// the effect; no rule matching means deny. An allow decision at high risk
// is promoted to require_approval.
//
// The loaded policy is an immutable snapshot swapped atomically, so reloads
// never block in-flight evaluations. The engine's version is a content hash
// of the policy source, stamped onto every decided action.
package policy
