package store

// sqliteMigrations contains the numbered schema migrations for the embedded
// backend. Each entry runs once, in order, inside its own transaction; the
// applied version is recorded in schema_migrations. Never edit an applied
// migration; append a new one.
var sqliteMigrations = []string{
	// 1: initial schema
	`
CREATE TABLE IF NOT EXISTS actions (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    tool TEXT NOT NULL,
    operation TEXT NOT NULL,
    params_json TEXT NOT NULL,
    context_json TEXT NOT NULL,
    decision TEXT,
    status TEXT NOT NULL,
    reason TEXT,
    risk_level TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    approval_token TEXT,
    policy_version TEXT,
    version INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_actions_created_at ON actions (created_at);
CREATE INDEX IF NOT EXISTS idx_actions_agent_tool ON actions (agent_id, tool, operation);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions (status);

CREATE TABLE IF NOT EXISTS action_events (
    id TEXT PRIMARY KEY,
    action_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    meta_json TEXT,
    created_at TEXT NOT NULL,
    FOREIGN KEY (action_id) REFERENCES actions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_action_events_action_id ON action_events (action_id);
CREATE INDEX IF NOT EXISTS idx_action_events_created_at ON action_events (created_at);
`,

	// 2: execution-gate forward-compatibility columns and event hash chain
	`
ALTER TABLE actions ADD COLUMN outcome TEXT;
ALTER TABLE actions ADD COLUMN reason_code TEXT;
ALTER TABLE actions ADD COLUMN reason_details_json TEXT;
ALTER TABLE actions ADD COLUMN request_hash TEXT;
ALTER TABLE actions ADD COLUMN policy_hash TEXT;
ALTER TABLE actions ADD COLUMN runtime_version TEXT;
ALTER TABLE actions ADD COLUMN profile_id TEXT;
ALTER TABLE actions ADD COLUMN profile_version TEXT;
ALTER TABLE actions ADD COLUMN profile_hash TEXT;
ALTER TABLE actions ADD COLUMN provenance_id TEXT;

ALTER TABLE action_events ADD COLUMN prev_hash TEXT;
ALTER TABLE action_events ADD COLUMN record_hash TEXT;
`,
}
