package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writePolicy(t *testing.T, path, src string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
}

func waitForVersion(t *testing.T, e *Engine, old string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e.Version() != old {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("policy version never changed")
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	writePolicy(t, path, "rules:\n  - match: {tool: \"http\"}\n    allow: true\n")

	e := NewEngine(nil)
	if err := e.LoadFile(path); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}
	v1 := e.Version()

	reloads := make(chan error, 4)
	w := NewWatcher(e, WatcherConfig{
		Path:             path,
		DebounceInterval: 50 * time.Millisecond,
		OnReload:         func(err error) { reloads <- err },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register before mutating the file.
	time.Sleep(100 * time.Millisecond)

	writePolicy(t, path, "rules:\n  - match: {tool: \"http\"}\n    deny: true\n")
	waitForVersion(t, e, v1)

	select {
	case err := <-reloads:
		if err != nil {
			t.Errorf("reload reported error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_KeepsPolicyOnBadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	writePolicy(t, path, "rules:\n  - match: {tool: \"http\"}\n    allow: true\n")

	e := NewEngine(nil)
	if err := e.LoadFile(path); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}
	v1 := e.Version()

	reloads := make(chan error, 4)
	w := NewWatcher(e, WatcherConfig{
		Path:             path,
		DebounceInterval: 50 * time.Millisecond,
		OnReload:         func(err error) { reloads <- err },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)
	time.Sleep(100 * time.Millisecond)

	writePolicy(t, path, "{{{ not yaml")

	select {
	case err := <-reloads:
		if err == nil {
			t.Error("expected reload error for malformed policy")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}

	if e.Version() != v1 {
		t.Error("malformed write must not replace the active policy")
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	writePolicy(t, path, "rules: []\n")

	w := NewWatcher(NewEngine(nil), WatcherConfig{Path: path}, nil)
	go w.Watch(context.Background())
	time.Sleep(50 * time.Millisecond)

	w.Stop()
	w.Stop()
}

func TestWatcher_ConcurrentStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	writePolicy(t, path, "rules: []\n")

	w := NewWatcher(NewEngine(nil), WatcherConfig{Path: path}, nil)
	go w.Watch(context.Background())
	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
}
