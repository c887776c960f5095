package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fara-hq/governor/pkg/action"
	"fara-hq/governor/pkg/config"
	"fara-hq/governor/pkg/events"
	"fara-hq/governor/pkg/executor"
	"fara-hq/governor/pkg/governor"
	"fara-hq/governor/pkg/policy"
	"fara-hq/governor/pkg/server"
	"fara-hq/governor/pkg/store"
	"fara-hq/governor/pkg/telemetry/health"
	"fara-hq/governor/pkg/telemetry/logging"
	"fara-hq/governor/pkg/telemetry/metrics"
)

var runFlags struct {
	port       int
	policyFile string
	logLevel   string
	dryRun     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the governor server",
	Long: `Start the governor server with the specified configuration.

The server accepts action submissions from agents, decides them against the
active policy, and serves the approval, execution, and audit endpoints.

Examples:
  # Start with defaults (sqlite store, port 8080)
  governor run

  # Start with a custom config
  governor run --config /etc/governor/config.yaml

  # Override the policy file and port
  governor run --policy policy.yaml --port 9090

  # Validate the config without starting
  governor run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runFlags.port, "port", "p", 0, "override listen port")
	runCmd.Flags().StringVar(&runFlags.policyFile, "policy", "", "override policy file path")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.port != 0 {
		cfg.API.Port = runFlags.port
	}
	if runFlags.policyFile != "" {
		cfg.Policy.File = runFlags.policyFile
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	st, err := store.Open(store.Options{
		Backend:     cfg.Store.Backend,
		SQLitePath:  cfg.Store.SQLitePath,
		PostgresDSN: cfg.Store.PostgresDSN,
		HashChain:   cfg.Store.HashChain,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	fmt.Printf("✓ Store initialized (%s)\n", cfg.Store.Backend)

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	// Policy engine
	engine := policy.NewEngine(logger)
	if cfg.Policy.File != "" {
		if err := engine.LoadFile(cfg.Policy.File); err != nil {
			logger.Warn("failed to load policy, denying all submissions until a valid policy loads",
				"file", cfg.Policy.File,
				"error", err,
			)
		} else {
			fmt.Printf("✓ Policy loaded (%d rules, version %s)\n", engine.RuleCount(), engine.Version())
		}
	} else {
		logger.Warn("no policy file configured, every submission will be denied")
	}

	if cfg.Policy.Watch && cfg.Policy.File != "" {
		watcher := policy.NewWatcher(engine, policy.WatcherConfig{
			Path: cfg.Policy.File,
			OnReload: func(err error) {
				if collector != nil {
					collector.PolicyReloaded(err)
				}
			},
		}, logger)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error("policy watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	// Event bus
	bus := events.NewBus(st, logger)
	defer bus.Close()
	if collector != nil {
		bus.SetEmitHook(func(et action.EventType) {
			collector.EventEmitted(string(et))
		})
	}

	// Executors
	registry := executor.NewRegistry(
		cfg.Executor.MaxConcurrent,
		time.Duration(cfg.Executor.ActionTimeout)*time.Second,
		logger,
	)
	if cfg.Executor.EnableShell {
		registry.Register("shell", executor.Shell{})
	}

	// Coordinator
	coord := governor.NewCoordinator(st, engine, bus, registry, governor.Config{}, logger)
	if collector != nil {
		coord.SetMetrics(collector)
	}

	// Store maintenance
	if cfg.Store.MaintenanceSchedule != "" {
		var onCount func(int64)
		if collector != nil {
			onCount = collector.SetStoredActions
		}
		maint := store.NewMaintenance(st, store.MaintenanceConfig{
			Schedule: cfg.Store.MaintenanceSchedule,
		}, onCount)
		if err := maint.Start(ctx); err != nil {
			logger.Warn("failed to start store maintenance", "error", err)
		} else {
			defer maint.Stop()
		}
	}

	// Health checks
	checker := health.New(0)
	checker.RegisterCheck("store", st.Ping)
	checker.RegisterCheck("policy", func(context.Context) error {
		if cfg.Policy.File != "" && engine.Version() == "empty" {
			return fmt.Errorf("policy file %s not loaded", cfg.Policy.File)
		}
		return nil
	})

	// Demo data
	if cfg.Demo {
		if err := server.SeedDemo(ctx, coord, st, logger); err != nil {
			logger.Warn("failed to seed demo actions", "error", err)
		}
	}

	printBanner(cfg, logger)

	srv := server.New(cfg, coord, engine, bus, collector, checker, logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	// Drain in-flight executions before the deferred teardown runs.
	registry.Wait()
	logger.Info("governor stopped")
	return nil
}

func printBanner(cfg *config.Config, logger *slog.Logger) {
	fmt.Printf("✓ Fara Governor %s\n", Version)
	fmt.Printf("  Listening on %s:%d\n", cfg.API.Host, cfg.API.Port)
	if cfg.API.AuthToken != "" {
		fmt.Println("  Auth: bearer token required")
	} else {
		fmt.Println("  Auth: disabled")
	}
	logger.Info("starting governor",
		"version", Version,
		"store", cfg.Store.Backend,
		"policy_file", cfg.Policy.File,
		"policy_watch", cfg.Policy.Watch,
		"shell_executor", cfg.Executor.EnableShell,
	)
}
