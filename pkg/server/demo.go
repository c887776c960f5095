package server

import (
	"context"
	"log/slog"

	"fara-hq/governor/pkg/action"
	"fara-hq/governor/pkg/governor"
	"fara-hq/governor/pkg/store"
)

// SeedDemo populates an empty store with a handful of representative
// actions so a fresh install has something to look at. Submissions go
// through the coordinator, so each one is decided by the live policy and
// gets a real audit trail. A non-empty store is left untouched.
func SeedDemo(ctx context.Context, coord *governor.Coordinator, s store.Store, logger *slog.Logger) error {
	n, err := s.CountActions(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	seeds := []governor.SubmitRequest{
		{
			AgentID:   "demo-agent",
			Tool:      "http",
			Operation: "get",
			Params:    action.Params{"url": "https://example.com/status"},
		},
		{
			AgentID:   "demo-agent",
			Tool:      "shell",
			Operation: "run",
			Params:    action.Params{"cmd": "ls /tmp"},
		},
		{
			AgentID:   "demo-agent",
			Tool:      "payments",
			Operation: "transfer",
			Params:    action.Params{"amount": 125.50, "currency": "USD"},
		},
		{
			AgentID:   "demo-agent",
			Tool:      "email",
			Operation: "send",
			Params:    action.Params{"to": "ops@example.com", "subject": "weekly report"},
		},
		{
			AgentID:   "demo-agent",
			Tool:      "db",
			Operation: "delete",
			Params:    action.Params{"table": "sessions", "where": "expired = true"},
			Context:   action.Context{"environment": "production"},
		},
	}

	for _, req := range seeds {
		if _, err := coord.Submit(ctx, req); err != nil {
			logger.Warn("demo seed rejected", "tool", req.Tool, "error", err)
		}
	}
	logger.Info("seeded demo actions", "count", len(seeds))
	return nil
}
