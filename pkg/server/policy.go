package server

import (
	"encoding/json"
	"net/http"
	"os"

	"fara-hq/governor/pkg/action"
	"fara-hq/governor/pkg/governor"
)

// handlePolicyInfo reports the active policy's provenance: configured file,
// whether it currently exists on disk, and the content-hash version.
func (s *Server) handlePolicyInfo(w http.ResponseWriter, r *http.Request) {
	path := s.config.Policy.File
	exists := false
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			exists = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policy_file":    path,
		"policy_path":    path,
		"exists":         exists,
		"policy_version": s.engine.Version(),
		"rule_count":     s.engine.RuleCount(),
	})
}

type evalBody struct {
	AgentID   string         `json:"agent_id"`
	Tool      string         `json:"tool"`
	Operation string         `json:"operation"`
	Params    action.Params  `json:"params"`
	Context   action.Context `json:"context"`
}

// handlePolicyEval is the dry-run playground: it evaluates a hypothetical
// action against the live policy without creating anything.
func (s *Server) handlePolicyEval(w http.ResponseWriter, r *http.Request) {
	var body evalBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if body.Tool == "" {
		s.writeError(w, &governor.ValidationError{Field: "tool", Message: "must not be empty"})
		return
	}
	if body.Operation == "" {
		s.writeError(w, &governor.ValidationError{Field: "operation", Message: "must not be empty"})
		return
	}

	res := s.engine.Evaluate(body.Tool, body.Operation, body.Params, body.Context)
	writeJSON(w, http.StatusOK, map[string]any{
		"decision":       res.Decision,
		"reason":         res.Reason,
		"risk_level":     res.RiskLevel,
		"policy_version": s.engine.Version(),
	})
}
