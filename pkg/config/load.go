package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration: defaults, then the YAML file at
// path (optional, skipped when path is empty), then FARA_* environment
// overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies FARA_* environment variables on top of cfg.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("FARA_API_HOST"); val != "" {
		cfg.API.Host = val
	}
	if val := os.Getenv("FARA_API_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.API.Port = i
		}
	}
	if val := os.Getenv("FARA_API_BASE"); val != "" {
		cfg.API.Base = val
	}
	if val := os.Getenv("FARA_AUTH_TOKEN"); val != "" {
		cfg.API.AuthToken = val
	}
	if val := os.Getenv("FARA_ENABLE_CORS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.API.EnableCORS = b
		}
	}

	if val := os.Getenv("FARA_DB_BACKEND"); val != "" {
		cfg.Store.Backend = val
	}
	if val := os.Getenv("FARA_SQLITE_PATH"); val != "" {
		cfg.Store.SQLitePath = val
	}
	if val := os.Getenv("FARA_POSTGRES_DSN"); val != "" {
		cfg.Store.PostgresDSN = val
	}
	if val := os.Getenv("FARA_HASH_CHAIN"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Store.HashChain = b
		}
	}
	if val := os.Getenv("FARA_MAINTENANCE_SCHEDULE"); val != "" {
		cfg.Store.MaintenanceSchedule = val
	}

	if val := os.Getenv("FARA_POLICY_FILE"); val != "" {
		cfg.Policy.File = val
	}
	if val := os.Getenv("FARA_POLICY_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = b
		}
	}

	if val := os.Getenv("FARA_ACTION_TIMEOUT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Executor.ActionTimeout = i
		}
	}

	if val := os.Getenv("FARA_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("FARA_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}

	if val := os.Getenv("FARA_DEMO"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Demo = b
		}
	}
}
