package config

import "time"

// Default creates a configuration with every field at its default. Loading
// unmarshals the YAML file over this value, so fields whose default is
// true survive being absent from the file.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			SQLitePath: "governor.db",
		},
		Policy: PolicyConfig{
			Watch: true,
		},
		Executor: ExecutorConfig{
			ActionTimeout: 30,
			MaxConcurrent: 16,
			EnableShell:   true,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "fara",
				Subsystem: "governor",
				Path:      "/metrics",
			},
		},
	}
}

// ApplyDefaults fills empty fields of cfg with their defaults. It is used
// after environment overrides so a blanked value falls back rather than
// breaking validation.
func ApplyDefaults(cfg *Config) {
	def := Default()

	if cfg.API.Host == "" {
		cfg.API.Host = def.API.Host
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = def.API.Port
	}
	if cfg.API.ReadTimeout == 0 {
		cfg.API.ReadTimeout = def.API.ReadTimeout
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = def.API.WriteTimeout
	}
	if cfg.API.IdleTimeout == 0 {
		cfg.API.IdleTimeout = def.API.IdleTimeout
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = def.Store.Backend
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = def.Store.SQLitePath
	}
	if cfg.Executor.ActionTimeout == 0 {
		cfg.Executor.ActionTimeout = def.Executor.ActionTimeout
	}
	if cfg.Executor.MaxConcurrent == 0 {
		cfg.Executor.MaxConcurrent = def.Executor.MaxConcurrent
	}
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = def.Telemetry.Logging.Level
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = def.Telemetry.Logging.Format
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = def.Telemetry.Metrics.Namespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = def.Telemetry.Metrics.Subsystem
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = def.Telemetry.Metrics.Path
	}
}
