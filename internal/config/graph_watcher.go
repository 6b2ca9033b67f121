package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/logging"
)

// GraphReloadCallback is called when the graph file is successfully reloaded.
// A callback error is logged but the watcher keeps watching.
type GraphReloadCallback func(cfg *graph.Config) error

// GraphWatcherConfig holds configuration for the GraphWatcher
type GraphWatcherConfig struct {
	// FilePath is the graph YAML file to watch
	FilePath string

	// DebounceMillis coalesces bursts of file change events (editor save
	// sequences, atomic replaces) into a single reload. Default 500ms.
	DebounceMillis int
}

// GraphWatcher watches the dependency graph file and triggers reload
// callbacks with debouncing. An invalid file during reload is logged and the
// previous graph stays in effect.
type GraphWatcher struct {
	config   GraphWatcherConfig
	callback GraphReloadCallback
	cancel   context.CancelFunc
	stopped  chan struct{}
	ready    chan struct{}
	logger   *logging.Logger
	mu       sync.Mutex

	debounceTimer *time.Timer
}

// NewGraphWatcher creates a watcher for the given graph file
func NewGraphWatcher(config GraphWatcherConfig, callback GraphReloadCallback) (*GraphWatcher, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if config.DebounceMillis == 0 {
		config.DebounceMillis = 500
	}
	return &GraphWatcher{
		config:   config,
		callback: callback,
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
		logger:   logging.GetLogger("config.graphwatcher"),
	}, nil
}

// Start loads the initial graph, invokes the callback, then watches for file
// changes until Stop is called or the context is cancelled. An initial load
// or callback failure fails startup.
func (w *GraphWatcher) Start(ctx context.Context) error {
	initial, err := LoadGraphFile(w.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load initial graph config: %w", err)
	}
	if err := w.callback(initial); err != nil {
		return fmt.Errorf("initial graph callback failed: %w", err)
	}
	w.logger.Info("loaded initial graph config from %s", w.config.FilePath)

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.watchLoop(watchCtx)

	// Block until the fsnotify watch is in place so changes right after
	// startup are not missed.
	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}
	return nil
}

func (w *GraphWatcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *GraphWatcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.FilePath); err != nil {
		w.logger.Error("failed to watch file %s: %v", w.config.FilePath, err)
		return
	}
	w.logger.Info("watching %s for changes (debounce: %dms)",
		w.config.FilePath, w.config.DebounceMillis)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("context cancelled, stopping graph watcher")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Atomic writes unlink the old file before renaming the new
			// one into place; the watch follows the inode, so re-add it.
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.config.FilePath); err != nil {
					w.logger.Warn("failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.handleFileChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error: %v", err)
		}
	}
}

// handleFileChange resets the debounce timer on each event so a burst of
// events produces a single reload.
func (w *GraphWatcher) handleFileChange() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(
		time.Duration(w.config.DebounceMillis)*time.Millisecond,
		w.reload,
	)
}

func (w *GraphWatcher) reload() {
	w.logger.Info("reloading graph config from %s", w.config.FilePath)
	cfg, err := LoadGraphFile(w.config.FilePath)
	if err != nil {
		w.logger.Error("failed to load graph config (keeping previous graph): %v", err)
		return
	}
	if err := w.callback(cfg); err != nil {
		w.logger.Error("graph reload callback error (continuing to watch): %v", err)
		return
	}
	w.logger.Info("graph config reloaded successfully")
}

// Stop gracefully stops the watcher, waiting up to five seconds for the
// watch loop to exit.
func (w *GraphWatcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.stopped:
		w.logger.Debug("graph watcher stopped gracefully")
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}
