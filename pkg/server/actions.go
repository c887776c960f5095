package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"fara-hq/governor/pkg/action"
	"fara-hq/governor/pkg/governor"
	"fara-hq/governor/pkg/store"
)

// actionResponse is the wire form of an action. The approval token is
// included only on single-action responses: the submitter and anyone who
// can GET the action by ID may see it, but list responses omit it so a
// casual enumeration never leaks pending tokens.
type actionResponse struct {
	ID            string           `json:"id"`
	AgentID       string           `json:"agent_id"`
	Tool          string           `json:"tool"`
	Operation     string           `json:"operation"`
	Params        action.Params    `json:"params"`
	Context       action.Context   `json:"context"`
	Decision      action.Decision  `json:"decision,omitempty"`
	Status        action.Status    `json:"status"`
	Reason        string           `json:"reason,omitempty"`
	RiskLevel     action.RiskLevel `json:"risk_level,omitempty"`
	ApprovalToken string           `json:"approval_token,omitempty"`
	PolicyVersion string           `json:"policy_version,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func toResponse(a *action.Action, includeToken bool) actionResponse {
	resp := actionResponse{
		ID:            a.ID,
		AgentID:       a.AgentID,
		Tool:          a.Tool,
		Operation:     a.Operation,
		Params:        a.Params,
		Context:       a.Context,
		Decision:      a.Decision,
		Status:        a.Status,
		Reason:        a.Reason,
		RiskLevel:     a.RiskLevel,
		PolicyVersion: a.PolicyVersion,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if includeToken {
		resp.ApprovalToken = a.ApprovalToken
	}
	return resp
}

type submitBody struct {
	AgentID   string         `json:"agent_id"`
	Tool      string         `json:"tool"`
	Operation string         `json:"operation"`
	Params    action.Params  `json:"params"`
	Context   action.Context `json:"context"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	a, err := s.coordinator.Submit(r.Context(), governor.SubmitRequest{
		AgentID:   body.AgentID,
		Tool:      body.Tool,
		Operation: body.Operation,
		Params:    body.Params,
		Context:   body.Context,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(a, true))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 50)
	offset := queryInt(q.Get("offset"), 0)

	actions, err := s.coordinator.List(r.Context(), limit, offset, store.Filter{
		AgentID: q.Get("agent_id"),
		Tool:    q.Get("tool"),
		Status:  q.Get("status"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := make([]actionResponse, 0, len(actions))
	for _, a := range actions {
		resp = append(resp, toResponse(a, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.coordinator.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a, true))
}

type approvalBody struct {
	Token   string `json:"token"`
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	var body approvalBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	id := r.PathValue("id")
	var (
		a   *action.Action
		err error
	)
	if body.Approve {
		a, err = s.coordinator.Approve(r.Context(), id, body.Token, body.Reason)
	} else {
		a, err = s.coordinator.Deny(r.Context(), id, body.Token, body.Reason)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a, true))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	a, err := s.coordinator.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a, true))
}

type resultBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	var body resultBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	a, err := s.coordinator.RecordResult(r.Context(), r.PathValue("id"), body.Success, body.Error)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a, true))
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	a, err := s.coordinator.Replay(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(a, true))
}

func (s *Server) handleActionEvents(w http.ResponseWriter, r *http.Request) {
	evts, err := s.coordinator.Events(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if evts == nil {
		evts = []*action.Event{}
	}
	writeJSON(w, http.StatusOK, evts)
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
