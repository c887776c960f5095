package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Checkpointer is implemented by backends that can compact their write-ahead
// state. Only the SQLite backend does today.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// MaintenanceConfig configures the periodic store maintenance job.
type MaintenanceConfig struct {
	// Schedule is a standard cron expression (e.g. "0 3 * * *" for daily
	// at 3 AM). Empty disables maintenance.
	Schedule string

	// JobTimeout bounds a single maintenance run. Default: 1 minute.
	JobTimeout time.Duration
}

// Maintenance runs periodic housekeeping against the store: WAL
// checkpointing for the embedded backend and a refresh of the stored-action
// gauge. It follows the run-on-a-cron-schedule shape used elsewhere in the
// codebase for retention work.
type Maintenance struct {
	store   Store
	config  MaintenanceConfig
	cron    *cron.Cron
	logger  *slog.Logger
	onCount func(int64)
	mu      sync.Mutex
	running bool
}

// NewMaintenance creates a maintenance scheduler. onCount, if non-nil, is
// called with the current action count after each run (used to refresh the
// store_actions metric).
func NewMaintenance(s Store, cfg MaintenanceConfig, onCount func(int64)) *Maintenance {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	return &Maintenance{
		store:   s,
		config:  cfg,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "store.maintenance"),
		onCount: onCount,
	}
}

// Start schedules the job and begins running it. A cancelled ctx stops the
// scheduler. With an empty schedule Start is a no-op.
func (m *Maintenance) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Schedule == "" {
		m.logger.Info("maintenance schedule not configured, skipping")
		return nil
	}
	if m.running {
		return fmt.Errorf("maintenance already running")
	}

	if _, err := cron.ParseStandard(m.config.Schedule); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", m.config.Schedule, err)
	}

	if _, err := m.cron.AddFunc(m.config.Schedule, func() { m.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	m.cron.Start()
	m.running = true
	m.logger.Info("store maintenance started", "schedule", m.config.Schedule)

	go func() {
		<-ctx.Done()
		m.Stop()
	}()

	return nil
}

// Stop halts the scheduler, waiting for an in-flight run to finish.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
	m.running = false
	m.logger.Info("store maintenance stopped")
}

// run executes one maintenance pass.
func (m *Maintenance) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, m.config.JobTimeout)
	defer cancel()

	start := time.Now()

	if cp, ok := m.store.(Checkpointer); ok {
		if err := cp.Checkpoint(runCtx); err != nil {
			m.logger.Error("wal checkpoint failed", "error", err)
		}
	}

	count, err := m.store.CountActions(runCtx)
	if err != nil {
		m.logger.Error("action count refresh failed", "error", err)
	} else if m.onCount != nil {
		m.onCount(count)
	}

	m.logger.Debug("maintenance run complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"actions", count,
	)
}
