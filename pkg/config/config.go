package config

import "time"

// Config is the root configuration for the governor.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Store     StoreConfig     `yaml:"store"`
	Policy    PolicyConfig    `yaml:"policy"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Demo seeds a handful of representative actions into an empty store
	// at startup.
	Demo bool `yaml:"demo"`
}

// APIConfig configures the HTTP transport.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Base is the externally visible base URL, used in self-referencing
	// links. Empty means derive from Host and Port.
	Base string `yaml:"base"`

	// AuthToken holds one or more comma-separated bearer tokens. Empty
	// disables authentication.
	AuthToken string `yaml:"auth_token"`

	EnableCORS bool `yaml:"enable_cors"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StoreConfig selects and configures the action store backend.
type StoreConfig struct {
	// Backend is "sqlite", "postgres" or "memory".
	Backend string `yaml:"backend"`

	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`

	// HashChain links audit events into per-action tamper-evident chains.
	HashChain bool `yaml:"hash_chain"`

	// MaintenanceSchedule is a cron expression for periodic housekeeping.
	// Empty disables the job.
	MaintenanceSchedule string `yaml:"maintenance_schedule"`
}

// PolicyConfig configures the policy engine.
type PolicyConfig struct {
	// File is the policy YAML path. Empty starts the engine with no rules
	// (every submission is denied).
	File string `yaml:"file"`

	// Watch reloads the policy when the file changes.
	Watch bool `yaml:"watch"`
}

// ExecutorConfig configures server-side execution.
type ExecutorConfig struct {
	// ActionTimeout is the default per-action execution timeout in
	// seconds, overridable per action via context.timeout.
	ActionTimeout int `yaml:"action_timeout"`

	// MaxConcurrent bounds in-flight executions.
	MaxConcurrent int `yaml:"max_concurrent"`

	// EnableShell registers the reference shell executor.
	EnableShell bool `yaml:"enable_shell"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
	Path      string `yaml:"path"`

	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
	ActionDurationBuckets  []float64 `yaml:"action_duration_buckets"`
}
