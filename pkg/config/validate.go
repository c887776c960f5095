package config

import "fmt"

var validBackends = map[string]bool{
	"sqlite":   true,
	"postgres": true,
	"memory":   true,
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var validLogFormats = map[string]bool{
	"json": true, "text": true,
}

// Validate checks the configuration for contradictions and out-of-range
// values.
func Validate(cfg *Config) error {
	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535, got %d", cfg.API.Port)
	}
	if !validBackends[cfg.Store.Backend] {
		return fmt.Errorf("store.backend must be sqlite, postgres or memory, got %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.PostgresDSN == "" {
		return fmt.Errorf("store.postgres_dsn is required with the postgres backend")
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path is required with the sqlite backend")
	}
	if cfg.Executor.ActionTimeout <= 0 {
		return fmt.Errorf("executor.action_timeout must be positive, got %d", cfg.Executor.ActionTimeout)
	}
	if cfg.Executor.MaxConcurrent <= 0 {
		return fmt.Errorf("executor.max_concurrent must be positive, got %d", cfg.Executor.MaxConcurrent)
	}
	if !validLogLevels[cfg.Telemetry.Logging.Level] {
		return fmt.Errorf("telemetry.logging.level must be debug, info, warn or error, got %q", cfg.Telemetry.Logging.Level)
	}
	if !validLogFormats[cfg.Telemetry.Logging.Format] {
		return fmt.Errorf("telemetry.logging.format must be json or text, got %q", cfg.Telemetry.Logging.Format)
	}
	return nil
}
