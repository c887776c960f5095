package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the engine when the policy file changes on disk. Editors
// often replace files by rename, so the parent directory is watched and
// events are filtered to the target path. Rapid event bursts are debounced.
type Watcher struct {
	engine   *Engine
	path     string
	debounce time.Duration
	onReload func(err error)
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherConfig configures a policy file watcher.
type WatcherConfig struct {
	// Path is the policy file to watch.
	Path string

	// DebounceInterval is the quiet period before a reload fires after a
	// burst of file events (default: 200ms).
	DebounceInterval time.Duration

	// OnReload, if non-nil, is called after every reload attempt with its
	// outcome (used to count reloads in metrics).
	OnReload func(err error)
}

// NewWatcher creates a watcher that reloads e from cfg.Path on change.
func NewWatcher(e *Engine, cfg WatcherConfig, logger *slog.Logger) *Watcher {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		engine:   e,
		path:     cfg.Path,
		debounce: cfg.DebounceInterval,
		onReload: cfg.OnReload,
		logger:   logger.With("component", "policy.watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Watch blocks processing file events until the context is cancelled or
// Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("policy watcher started",
		"path", w.path,
		"debounce_ms", w.debounce.Milliseconds(),
	)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	target := filepath.Clean(w.path)
	for {
		var fire <-chan time.Time
		if timer != nil {
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			w.logger.Info("policy watcher stopped")
			return nil

		case <-w.stopCh:
			w.logger.Info("policy watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("policy file event", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}

		case <-fire:
			timer = nil
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("policy watcher error", "error", err)
		}
	}
}

// Stop halts the watcher and waits for Watch to return. Safe to call from
// multiple goroutines; only the first call closes the stop channel.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()

	<-w.doneCh
}

func (w *Watcher) reload() {
	err := w.engine.LoadFile(w.path)
	if err != nil {
		w.logger.Error("policy reload failed, keeping previous policy", "error", err)
	} else {
		w.logger.Info("policy reloaded", "version", w.engine.Version())
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
