package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	//nolint:gosec // pprof is only exposed when explicitly enabled
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Runbook-Agent/change-intelligence/internal/api"
	"github.com/Runbook-Agent/change-intelligence/internal/config"
	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/lifecycle"
	"github.com/Runbook-Agent/change-intelligence/internal/logging"
	"github.com/Runbook-Agent/change-intelligence/internal/service"
	"github.com/Runbook-Agent/change-intelligence/internal/store"
	"github.com/Runbook-Agent/change-intelligence/internal/tracing"
)

var (
	databasePath       string
	graphConfigPath    string
	apiPort            int
	pprofEnabled       bool
	pprofPort          int
	tracingEnabled     bool
	tracingEndpoint    string
	tracingTLSCAPath   string
	tracingTLSInsecure bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the change intelligence server",
	Long: `Start the server: open the event store, load and watch the dependency
graph config, and serve the HTTP API.`,
	Run: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&databasePath, "database", "changeintel.db", "Path to the SQLite event store file")
	serverCmd.Flags().StringVar(&graphConfigPath, "graph-config", "", "Path to the dependency graph YAML file (optional, hot-reloaded)")
	serverCmd.Flags().IntVar(&apiPort, "api-port", 8080, "Port the API server listens on")
	serverCmd.Flags().BoolVar(&pprofEnabled, "pprof-enabled", false, "Enable pprof profiling server (default: false)")
	serverCmd.Flags().IntVar(&pprofPort, "pprof-port", 9999, "Port the pprof server listens on (default: 9999)")
	serverCmd.Flags().BoolVar(&tracingEnabled, "tracing-enabled", false, "Enable OpenTelemetry tracing (default: false)")
	serverCmd.Flags().StringVar(&tracingEndpoint, "tracing-endpoint", "", "OTLP gRPC endpoint for traces (e.g., otel-collector:4317)")
	serverCmd.Flags().StringVar(&tracingTLSCAPath, "tracing-tls-ca", "", "Path to CA certificate for TLS verification (optional)")
	serverCmd.Flags().BoolVar(&tracingTLSInsecure, "tracing-tls-insecure", false, "Skip TLS certificate verification (insecure, use only for testing)")
}

// storeComponent adapts the event store to the lifecycle interface
type storeComponent struct {
	store *store.Store
}

func (c *storeComponent) Start(ctx context.Context) error { return nil }
func (c *storeComponent) Stop(ctx context.Context) error  { return c.store.Close() }
func (c *storeComponent) Name() string                    { return "Event Store" }

// graphWatcherComponent adapts the graph file watcher to the lifecycle interface
type graphWatcherComponent struct {
	watcher *config.GraphWatcher
}

func (c *graphWatcherComponent) Start(ctx context.Context) error { return c.watcher.Start(ctx) }
func (c *graphWatcherComponent) Stop(ctx context.Context) error  { return c.watcher.Stop() }
func (c *graphWatcherComponent) Name() string                    { return "Graph Watcher" }

func runServer(cmd *cobra.Command, args []string) {
	cfg := &config.Config{
		DatabasePath:       databasePath,
		GraphConfigPath:    graphConfigPath,
		APIPort:            apiPort,
		TracingEnabled:     tracingEnabled,
		TracingEndpoint:    tracingEndpoint,
		TracingTLSCAPath:   tracingTLSCAPath,
		TracingTLSInsecure: tracingTLSInsecure,
	}
	if err := cfg.Validate(); err != nil {
		HandleError(err, "Configuration error")
	}

	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}
	logger := logging.GetLogger("server")
	logger.Info("Starting changeintel v%s", Version)

	manager := lifecycle.NewManager()

	tracingProvider, err := tracing.NewTracingProvider(tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		TLSCAPath:   cfg.TracingTLSCAPath,
		TLSInsecure: cfg.TracingTLSInsecure,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing (continuing without tracing): %v", err)
		tracingProvider = nil
	}
	if tracingProvider != nil {
		if err := manager.Register(tracingProvider); err != nil {
			HandleError(err, "Tracing registration error")
		}
	}

	if pprofEnabled {
		go func() {
			pprofAddr := fmt.Sprintf(":%d", pprofPort)
			logger.Info("Starting pprof server on %s", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil { //nolint:gosec
				logger.Error("pprof server failed: %v", err)
			}
		}()
	}

	eventStore, err := store.Open(cfg.DatabasePath)
	if err != nil {
		HandleError(err, "Failed to open event store")
	}
	storeComp := &storeComponent{store: eventStore}
	if err := manager.Register(storeComp); err != nil {
		HandleError(err, "Store registration error")
	}

	serviceGraph := graph.New()
	svc := service.New(eventStore, serviceGraph, prometheus.DefaultRegisterer)

	if cfg.GraphConfigPath != "" {
		watcher, err := config.NewGraphWatcher(config.GraphWatcherConfig{
			FilePath: cfg.GraphConfigPath,
		}, svc.ApplyGraphConfig)
		if err != nil {
			HandleError(err, "Failed to create graph watcher")
		}
		if err := manager.Register(&graphWatcherComponent{watcher: watcher}, storeComp); err != nil {
			HandleError(err, "Graph watcher registration error")
		}
	}

	apiServer := api.NewServer(cfg.APIPort, svc)
	if err := manager.Register(apiServer, storeComp); err != nil {
		HandleError(err, "API server registration error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		HandleError(err, "Startup failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received signal %v, shutting down", sig)

	if err := manager.Stop(context.Background()); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}
