package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"fara-hq/governor/pkg/action"
	"fara-hq/governor/pkg/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and test policy files",
}

var validateFlags struct {
	file   string
	format string
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a policy file",
	Long: `Validate a policy file for syntax and semantic errors.

The validator parses the YAML, checks that every rule carries exactly one
effect, and verifies risk levels.

Examples:
  # Validate a file
  governor policy validate --file policy.yaml

  # JSON output for CI
  governor policy validate --file policy.yaml --format json`,
	RunE: validatePolicy,
}

var evalFlags struct {
	file       string
	tool       string
	op         string
	paramsJSON string
	ctxJSON    string
}

var policyEvalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Dry-run an action against a policy file",
	Long: `Evaluate a hypothetical action against a policy file and print the
decision without contacting a server or creating anything.

Examples:
  # Would this transfer be allowed?
  governor policy eval --file policy.yaml --tool payments --op transfer --params '{"amount": 500}'

  # Include submission context
  governor policy eval --file policy.yaml --tool db --op delete --context '{"environment": "production"}'`,
	RunE: evalPolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policyEvalCmd)

	policyValidateCmd.Flags().StringVarP(&validateFlags.file, "file", "f", "", "policy file to validate")
	policyValidateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
	policyValidateCmd.MarkFlagRequired("file")

	policyEvalCmd.Flags().StringVarP(&evalFlags.file, "file", "f", "", "policy file to evaluate against")
	policyEvalCmd.Flags().StringVar(&evalFlags.tool, "tool", "", "tool of the hypothetical action")
	policyEvalCmd.Flags().StringVar(&evalFlags.op, "op", "", "operation of the hypothetical action")
	policyEvalCmd.Flags().StringVar(&evalFlags.paramsJSON, "params", "", "action params as JSON")
	policyEvalCmd.Flags().StringVar(&evalFlags.ctxJSON, "context", "", "action context as JSON")
	policyEvalCmd.MarkFlagRequired("file")
	policyEvalCmd.MarkFlagRequired("tool")
	policyEvalCmd.MarkFlagRequired("op")
}

// quietLogger keeps engine noise out of CLI output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validatePolicy(cmd *cobra.Command, args []string) error {
	engine := policy.NewEngine(quietLogger())
	loadErr := engine.LoadFile(validateFlags.file)

	if validateFlags.format == "json" {
		out := map[string]any{
			"file":  validateFlags.file,
			"valid": loadErr == nil,
		}
		if loadErr != nil {
			out["error"] = loadErr.Error()
		} else {
			out["version"] = engine.Version()
			out["rules"] = engine.RuleCount()
			out["risk_rules"] = engine.RiskRuleCount()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		if loadErr != nil {
			os.Exit(1)
		}
		return nil
	}

	if loadErr != nil {
		return fmt.Errorf("policy invalid: %w", loadErr)
	}
	fmt.Printf("✓ %s is valid\n", validateFlags.file)
	fmt.Printf("  Version:    %s\n", engine.Version())
	fmt.Printf("  Rules:      %d\n", engine.RuleCount())
	fmt.Printf("  Risk rules: %d\n", engine.RiskRuleCount())
	return nil
}

func evalPolicy(cmd *cobra.Command, args []string) error {
	engine := policy.NewEngine(quietLogger())
	if err := engine.LoadFile(evalFlags.file); err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	var params action.Params
	if evalFlags.paramsJSON != "" {
		if err := json.Unmarshal([]byte(evalFlags.paramsJSON), &params); err != nil {
			return fmt.Errorf("invalid --params JSON: %w", err)
		}
	}
	var actionCtx action.Context
	if evalFlags.ctxJSON != "" {
		if err := json.Unmarshal([]byte(evalFlags.ctxJSON), &actionCtx); err != nil {
			return fmt.Errorf("invalid --context JSON: %w", err)
		}
	}

	res := engine.Evaluate(evalFlags.tool, evalFlags.op, params, actionCtx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"decision":       res.Decision,
		"reason":         res.Reason,
		"risk_level":     res.RiskLevel,
		"policy_version": engine.Version(),
	})
}
