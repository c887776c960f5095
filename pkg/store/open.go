package store

import (
	"fmt"
	"log/slog"
)

// Backend names recognized by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a storage backend.
type Options struct {
	// Backend is "sqlite" or "postgres".
	Backend string

	// SQLitePath is the embedded database file path.
	SQLitePath string

	// PostgresDSN is the networked backend connection string.
	PostgresDSN string

	// HashChain enables tamper-evident event chaining.
	HashChain bool
}

// Open creates the configured backend. When the postgres backend is
// selected but unreachable at startup, Open falls back to the embedded
// backend with a warning; the governor never refuses to boot for storage
// reasons alone.
func Open(opts Options, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case BackendPostgres:
		cfg := DefaultPostgresConfig(opts.PostgresDSN)
		cfg.HashChain = opts.HashChain
		s, err := NewPostgresStore(cfg)
		if err == nil {
			return s, nil
		}
		logger.Warn("postgres backend unavailable, falling back to sqlite",
			"error", err,
			"sqlite_path", opts.SQLitePath,
		)
		return openSQLite(opts)

	case BackendSQLite, "":
		return openSQLite(opts)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

func openSQLite(opts Options) (Store, error) {
	cfg := DefaultSQLiteConfig()
	if opts.SQLitePath != "" {
		cfg.Path = opts.SQLitePath
	}
	cfg.HashChain = opts.HashChain
	return NewSQLiteStore(cfg)
}
