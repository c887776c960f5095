package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"fara-hq/governor/pkg/action"
)

// SQLiteConfig contains configuration for the embedded SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" opens a throwaway
	// in-process database.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// HashChain links audit events into a per-action tamper-evident chain.
	HashChain bool
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/actions.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store using an embedded SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at config.Path,
// runs pending schema migrations and returns the store.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "store.sqlite")

	if config.Path != ":memory:" {
		if dir := filepath.Dir(config.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn := config.Path
	if config.BusyTimeout > 0 {
		dsn += fmt.Sprintf("?_busy_timeout=%d", config.BusyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if config.WALMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	logger.Info("sqlite store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"hash_chain", config.HashChain,
	)

	return s, nil
}

// migrate applies pending numbered migrations. Runs with exclusive access
// at startup, before any request serving begins.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(sqliteMigrations); i++ {
		version := i + 1
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}

		for _, stmt := range splitStatements(sqliteMigrations[i]) {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", version, err)
			}
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339Nano),
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

// splitStatements breaks a migration script into single statements because
// database/sql Exec on sqlite only runs the first statement of a batch
// inside a prepared context.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// CreateAction inserts a new action row.
func (s *SQLiteStore) CreateAction(ctx context.Context, a *action.Action) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AgentID, a.Tool, a.Operation, string(paramsJSON), string(contextJSON),
		nullString(string(a.Decision)), string(a.Status), nullString(a.Reason), nullString(string(a.RiskLevel)),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
		nullString(a.ApprovalToken), nullString(a.PolicyVersion), a.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

// UpdateAction writes a guarded by the expected version.
func (s *SQLiteStore) UpdateAction(ctx context.Context, a *action.Action, expectedVersion int64) (bool, error) {
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
			params_json = ?, context_json = ?,
			decision = ?, status = ?, reason = ?, risk_level = ?,
			updated_at = ?, approval_token = ?, policy_version = ?, version = ?
		WHERE id = ? AND version = ?`,
		string(paramsJSON), string(contextJSON),
		nullString(string(a.Decision)), string(a.Status), nullString(a.Reason), nullString(string(a.RiskLevel)),
		formatTime(a.UpdatedAt), nullString(a.ApprovalToken), nullString(a.PolicyVersion), newVersion,
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

const actionColumns = `id, agent_id, tool, operation, params_json, context_json,
	decision, status, reason, risk_level, created_at, updated_at,
	approval_token, policy_version, version`

// GetAction returns the action or ErrNotFound.
func (s *SQLiteStore) GetAction(ctx context.Context, id string) (*action.Action, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+actionColumns+" FROM actions WHERE id = ?", id)

	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read action: %w", err)
	}
	return a, nil
}

// ListActions returns filtered actions ordered by created_at descending.
func (s *SQLiteStore) ListActions(ctx context.Context, limit, offset int, f Filter) ([]*action.Action, error) {
	// A negative limit would mean "unbounded" to sqlite; keep the contract
	// uniform across backends instead.
	if limit <= 0 {
		return nil, nil
	}

	var where []string
	var args []any

	if f.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.Tool != "" {
		where = append(where, "tool = ?")
		args = append(args, f.Tool)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := "SELECT " + actionColumns + " FROM actions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*action.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CountActions returns the total row count.
func (s *SQLiteStore) CountActions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM actions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return n, nil
}

// AppendEvent inserts an audit event with a server-assigned timestamp.
func (s *SQLiteStore) AppendEvent(ctx context.Context, actionID string, eventType action.EventType, meta map[string]any) (*action.Event, error) {
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
		prev, err := s.lastRecordHash(ctx, actionID)
		if err != nil {
			return nil, fmt.Errorf("failed to read event chain head: %w", err)
		}
		e.PrevHash = prev
		e.RecordHash = chainHash(prev, e)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO action_events (id, action_id, event_type, meta_json, created_at, prev_hash, record_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActionID, string(e.EventType), string(metaJSON),
		formatTime(e.CreatedAt), nullString(e.PrevHash), nullString(e.RecordHash),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return e, nil
}

// lastRecordHash returns the record hash of the most recent event for the
// action, or "" when the chain is empty.
func (s *SQLiteStore) lastRecordHash(ctx context.Context, actionID string) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT record_hash FROM action_events
		WHERE action_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, actionID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash.String, nil
}

// GetEvents returns all events for the action ordered by created_at.
func (s *SQLiteStore) GetEvents(ctx context.Context, actionID string) ([]*action.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action_id, event_type, meta_json, created_at, prev_hash, record_hash
		FROM action_events
		WHERE action_id = ?
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
			createdAt            string
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
		e.CreatedAt = parseTime(createdAt)
		e.PrevHash = prevHash.String
		e.RecordHash = recordHash.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Checkpoint forces a WAL checkpoint. Used by the maintenance scheduler to
// keep the WAL file bounded on long-running deployments.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*action.Action, error) {
	var (
		a                                                 action.Action
		paramsJSON, contextJSON                           string
		decision, reason, riskLevel, token, policyVersion sql.NullString
		createdAt, updatedAt                              string
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
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)

	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timeLayout is fixed-width so that lexicographic ordering of the stored
// TEXT column matches chronological ordering (RFC3339Nano trims trailing
// zeros and would not).
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
