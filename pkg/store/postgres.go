package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fara-hq/governor/pkg/action"
)

// postgresMigrations mirrors sqliteMigrations in PostgreSQL dialect.
var postgresMigrations = []string{
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
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    approval_token TEXT,
    policy_version TEXT,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_actions_created_at ON actions (created_at);
CREATE INDEX IF NOT EXISTS idx_actions_agent_tool ON actions (agent_id, tool, operation);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions (status);

CREATE TABLE IF NOT EXISTS action_events (
    id TEXT PRIMARY KEY,
    action_id TEXT NOT NULL REFERENCES actions(id) ON DELETE CASCADE,
    event_type TEXT NOT NULL,
    meta_json TEXT,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_events_action_id ON action_events (action_id);
CREATE INDEX IF NOT EXISTS idx_action_events_created_at ON action_events (created_at);
`,

	// 2: execution-gate forward-compatibility columns and event hash chain
	`
ALTER TABLE actions ADD COLUMN IF NOT EXISTS outcome TEXT;
ALTER TABLE actions ADD COLUMN IF NOT EXISTS reason_code TEXT;
ALTER TABLE actions ADD COLUMN IF NOT EXISTS reason_details_json TEXT;
ALTER TABLE actions ADD COLUMN IF NOT EXISTS request_hash TEXT;
ALTER TABLE actions ADD COLUMN IF NOT EXISTS policy_hash TEXT;
ALTER TABLE actions ADD COLUMN IF NOT EXISTS runtime_version TEXT;
ALTER TABLE actions ADD COLUMN IF NOT EXISTS profile_id TEXT;
ALTER TABLE actions ADD COLUMN IF NOT EXISTS profile_version TEXT;
ALTER TABLE actions ADD COLUMN IF NOT EXISTS profile_hash TEXT;
ALTER TABLE actions ADD COLUMN IF NOT EXISTS provenance_id TEXT;

ALTER TABLE action_events ADD COLUMN IF NOT EXISTS prev_hash TEXT;
ALTER TABLE action_events ADD COLUMN IF NOT EXISTS record_hash TEXT;
`,
}

// PostgresConfig contains configuration for the networked backend.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// ConnectTimeout bounds the startup reachability probe.
	// Default: 5 seconds
	ConnectTimeout time.Duration

	// HashChain links audit events into a per-action tamper-evident chain.
	HashChain bool
}

// DefaultPostgresConfig returns the default PostgreSQL configuration.
func DefaultPostgresConfig(dsn string) *PostgresConfig {
	return &PostgresConfig{
		DSN:            dsn,
		MaxOpenConns:   10,
		MaxIdleConns:   5,
		ConnectTimeout: 5 * time.Second,
	}
}

// PostgresStore implements Store using PostgreSQL via the pgx stdlib driver.
type PostgresStore struct {
	db     *sql.DB
	config *PostgresConfig
	logger *slog.Logger
}

// NewPostgresStore connects to PostgreSQL, verifies reachability within the
// configured connect timeout and runs pending schema migrations.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		return nil, fmt.Errorf("postgres config is required")
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 5
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}

	db, err := sql.Open("pgx", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}

	s := &PostgresStore{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "store.postgres"),
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	s.logger.Info("postgres store initialized", "hash_chain", config.HashChain)
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL
	)`); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(postgresMigrations); i++ {
		version := i + 1
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, postgresMigrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)",
			version, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", version, err)
		}
		s.logger.Info("applied schema migration", "version", version)
	}
	return nil
}

// CreateAction inserts a new action row.
func (s *PostgresStore) CreateAction(ctx context.Context, a *action.Action) error {
	paramsJSON, err := json.Marshal(a.Params)
	if err != nil {
		return fmt.Errorf("failed to serialize params: %w", err)
	}
	contextJSON, err := json.Marshal(a.Context)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actions (
			id, agent_id, tool, operation, params_json, context_json,
			decision, status, reason, risk_level,
			created_at, updated_at, approval_token, policy_version, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.AgentID, a.Tool, a.Operation, string(paramsJSON), string(contextJSON),
		nullString(string(a.Decision)), string(a.Status), nullString(a.Reason), nullString(string(a.RiskLevel)),
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
		nullString(a.ApprovalToken), nullString(a.PolicyVersion), a.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

// UpdateAction writes a guarded by the expected version.
func (s *PostgresStore) UpdateAction(ctx context.Context, a *action.Action, expectedVersion int64) (bool, error) {
	paramsJSON, err := json.Marshal(a.Params)
	if err != nil {
		return false, fmt.Errorf("failed to serialize params: %w", err)
	}
	contextJSON, err := json.Marshal(a.Context)
	if err != nil {
		return false, fmt.Errorf("failed to serialize context: %w", err)
	}

	newVersion := expectedVersion + 1
	res, err := s.db.ExecContext(ctx, `
		UPDATE actions SET
			params_json = $1, context_json = $2,
			decision = $3, status = $4, reason = $5, risk_level = $6,
			updated_at = $7, approval_token = $8, policy_version = $9, version = $10
		WHERE id = $11 AND version = $12`,
		string(paramsJSON), string(contextJSON),
		nullString(string(a.Decision)), string(a.Status), nullString(a.Reason), nullString(string(a.RiskLevel)),
		a.UpdatedAt.UTC(), nullString(a.ApprovalToken), nullString(a.PolicyVersion), newVersion,
		a.ID, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update action: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	a.Version = newVersion
	return true, nil
}

// GetAction returns the action or ErrNotFound.
func (s *PostgresStore) GetAction(ctx context.Context, id string) (*action.Action, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+actionColumns+" FROM actions WHERE id = $1", id)

	a, err := scanPostgresAction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read action: %w", err)
	}
	return a, nil
}

// ListActions returns filtered actions ordered by created_at descending.
func (s *PostgresStore) ListActions(ctx context.Context, limit, offset int, f Filter) ([]*action.Action, error) {
	if limit <= 0 {
		return nil, nil
	}

	var where []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.AgentID != "" {
		where = append(where, "agent_id = "+arg(f.AgentID))
	}
	if f.Tool != "" {
		where = append(where, "tool = "+arg(f.Tool))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(f.Status))
	}

	query := "SELECT " + actionColumns + " FROM actions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*action.Action
	for rows.Next() {
		a, err := scanPostgresAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CountActions returns the total row count.
func (s *PostgresStore) CountActions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM actions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return n, nil
}

// AppendEvent inserts an audit event with a server-assigned timestamp.
func (s *PostgresStore) AppendEvent(ctx context.Context, actionID string, eventType action.EventType, meta map[string]any) (*action.Event, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		s.logger.Warn("failed to serialize event meta, storing empty object", "error", err)
		metaJSON = []byte("{}")
	}

	e := &action.Event{
		ID:        uuid.NewString(),
		ActionID:  actionID,
		EventType: eventType,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}

	if s.config.HashChain {
		var prev sql.NullString
		err := s.db.QueryRowContext(ctx, `
			SELECT record_hash FROM action_events
			WHERE action_id = $1
			ORDER BY created_at DESC, id DESC LIMIT 1`, actionID).Scan(&prev)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to read event chain head: %w", err)
		}
		e.PrevHash = prev.String
		e.RecordHash = chainHash(prev.String, e)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO action_events (id, action_id, event_type, meta_json, created_at, prev_hash, record_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ActionID, string(e.EventType), string(metaJSON),
		e.CreatedAt, nullString(e.PrevHash), nullString(e.RecordHash),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return e, nil
}

// GetEvents returns all events for the action ordered by created_at.
func (s *PostgresStore) GetEvents(ctx context.Context, actionID string) ([]*action.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action_id, event_type, meta_json, created_at, prev_hash, record_hash
		FROM action_events
		WHERE action_id = $1
		ORDER BY created_at ASC, id ASC`, actionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*action.Event
	for rows.Next() {
		var (
			e                    action.Event
			metaJSON             sql.NullString
			createdAt            time.Time
			prevHash, recordHash sql.NullString
			eventType            string
		)
		if err := rows.Scan(&e.ID, &e.ActionID, &eventType, &metaJSON, &createdAt, &prevHash, &recordHash); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.EventType = action.EventType(eventType)
		e.Meta = map[string]any{}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &e.Meta); err != nil {
				s.logger.Warn("failed to parse event meta", "event_id", e.ID, "error", err)
			}
		}
		e.CreatedAt = createdAt.UTC()
		e.PrevHash = prevHash.String
		e.RecordHash = recordHash.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanPostgresAction(row rowScanner) (*action.Action, error) {
	var (
		a                                                 action.Action
		paramsJSON, contextJSON                           string
		decision, reason, riskLevel, token, policyVersion sql.NullString
		createdAt, updatedAt                              time.Time
	)

	err := row.Scan(
		&a.ID, &a.AgentID, &a.Tool, &a.Operation, &paramsJSON, &contextJSON,
		&decision, (*string)(&a.Status), &reason, &riskLevel,
		&createdAt, &updatedAt, &token, &policyVersion, &a.Version,
	)
	if err != nil {
		return nil, err
	}

	a.Params = action.Params{}
	if err := json.Unmarshal([]byte(paramsJSON), &a.Params); err != nil {
		return nil, fmt.Errorf("corrupt params for action %s: %w", a.ID, err)
	}
	a.Context = action.Context{}
	if err := json.Unmarshal([]byte(contextJSON), &a.Context); err != nil {
		return nil, fmt.Errorf("corrupt context for action %s: %w", a.ID, err)
	}

	a.Decision = action.Decision(decision.String)
	a.Reason = reason.String
	a.RiskLevel = action.RiskLevel(riskLevel.String)
	a.ApprovalToken = token.String
	a.PolicyVersion = policyVersion.String
	a.CreatedAt = createdAt.UTC()
	a.UpdatedAt = updatedAt.UTC()

	return &a, nil
}
