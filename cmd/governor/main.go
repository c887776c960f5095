// Fara Governor is an execution governor for autonomous agents.
//
// Agents propose side-effecting actions; the governor decides each one
// against a declarative policy, holds risky actions for human approval,
// executes or hands back approved work, and keeps an append-only audit
// trail of every lifecycle step.
//
// Usage:
//
//	# Start the server with default configuration
//	governor run
//
//	# Start with a custom configuration file
//	governor run --config /etc/governor/config.yaml
//
//	# Validate a policy file
//	governor policy validate --file policy.yaml
//
//	# Dry-run an action against a policy file
//	governor policy eval --file policy.yaml --tool payments --op transfer --params '{"amount": 500}'
//
//	# Show version information
//	governor version
package main

func main() {
	Execute()
}
