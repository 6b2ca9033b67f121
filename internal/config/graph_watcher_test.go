package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
)

const watcherTestTimeout = 10 * time.Second

func TestNewGraphWatcherValidation(t *testing.T) {
	_, err := NewGraphWatcher(GraphWatcherConfig{}, func(*graph.Config) error { return nil })
	assert.Error(t, err, "empty file path")

	_, err = NewGraphWatcher(GraphWatcherConfig{FilePath: "graph.yaml"}, nil)
	assert.Error(t, err, "nil callback")
}

func TestGraphWatcherInitialLoadFailureFailsStart(t *testing.T) {
	watcher, err := NewGraphWatcher(GraphWatcherConfig{FilePath: "/does/not/exist.yaml"},
		func(*graph.Config) error { return nil })
	require.NoError(t, err)
	assert.Error(t, watcher.Start(context.Background()))
}

func TestGraphWatcherReloadsOnChange(t *testing.T) {
	path := writeGraphFile(t, `
services:
  - id: api
dependencies: []
`)

	configs := make(chan *graph.Config, 4)
	watcher, err := NewGraphWatcher(
		GraphWatcherConfig{FilePath: path, DebounceMillis: 50},
		func(cfg *graph.Config) error {
			configs <- cfg
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, watcher.Start(context.Background()))
	t.Cleanup(func() { _ = watcher.Stop() })

	select {
	case initial := <-configs:
		require.Len(t, initial.Services, 1)
		assert.Equal(t, "api", initial.Services[0].ID)
	case <-time.After(watcherTestTimeout):
		t.Fatal("initial load callback never fired")
	}

	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - id: api
  - id: web
dependencies:
  - source: web
    target: api
`), 0o644))

	select {
	case reloaded := <-configs:
		assert.Len(t, reloaded.Services, 2)
		assert.Len(t, reloaded.Dependencies, 1)
	case <-time.After(watcherTestTimeout):
		t.Fatal("reload callback never fired after file change")
	}
}

func TestGraphWatcherKeepsPreviousGraphOnInvalidFile(t *testing.T) {
	path := writeGraphFile(t, `
services:
  - id: api
dependencies: []
`)

	configs := make(chan *graph.Config, 4)
	watcher, err := NewGraphWatcher(
		GraphWatcherConfig{FilePath: path, DebounceMillis: 50},
		func(cfg *graph.Config) error {
			configs <- cfg
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, watcher.Start(context.Background()))
	t.Cleanup(func() { _ = watcher.Stop() })

	select {
	case <-configs:
	case <-time.After(watcherTestTimeout):
		t.Fatal("initial load callback never fired")
	}

	// Duplicate ids fail validation; the watcher logs and keeps watching.
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - id: api
  - id: api
dependencies: []
`), 0o644))

	select {
	case cfg := <-configs:
		t.Fatalf("callback fired for an invalid file: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}

	// A valid write afterwards still reloads.
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - id: api
  - id: billing
dependencies: []
`), 0o644))

	select {
	case cfg := <-configs:
		assert.Len(t, cfg.Services, 2)
	case <-time.After(watcherTestTimeout):
		t.Fatal("reload callback never fired after recovery")
	}
}

func TestGraphWatcherStartStop(t *testing.T) {
	path := writeGraphFile(t, "services: []\ndependencies: []\n")
	watcher, err := NewGraphWatcher(GraphWatcherConfig{FilePath: path},
		func(*graph.Config) error { return nil })
	require.NoError(t, err)

	require.NoError(t, watcher.Start(context.Background()))
	require.NoError(t, watcher.Stop())
}
