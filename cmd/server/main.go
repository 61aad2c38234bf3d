/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the transport ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML file, .env, BRC_* variables)
  2. Build the slog logger and prometheus metrics
  3. Open the configured store (sqlite, mongodb or memory)
  4. Create the posting engine and, if enabled, the retry worker
  5. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Stop the retry worker
  3. Wait for active requests to complete (30s timeout)
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with defaults (sqlite at ./data/ledger.db, port 8080)
  ./server

  # Run against MongoDB
  BRC_DATABASE_DRIVER=mongodb BRC_DATABASE_MONGO_URI=mongodb://localhost:27017 ./server

  # Run with a config file
  ./server -config=./ledger.yaml

SEE ALSO:
  - config/config.go: Configuration sources and variables
  - api/server.go: Router configuration
  - posting/retry.go: Reconciliation retry worker
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brc/transport-ledger/api"
	"github.com/brc/transport-ledger/config"
	"github.com/brc/transport-ledger/logging"
	"github.com/brc/transport-ledger/metrics"
	"github.com/brc/transport-ledger/posting"
	"github.com/brc/transport-ledger/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Environment,
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := backend.Close(closeCtx); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	m := metrics.New("ledger")
	engine, err := posting.NewEngine(backend.Store,
		posting.WithLogger(logger),
		posting.WithRecorder(m),
		posting.WithMirrorGeneralLedger(cfg.Posting.MirrorGeneralLedger),
	)
	if err != nil {
		return fmt.Errorf("failed to build posting engine: %w", err)
	}

	if cfg.Reconciliation.RetryEnabled {
		worker := posting.NewRetryWorker(engine, logger)
		worker.Interval = cfg.Reconciliation.RetryInterval
		worker.MaxAttempts = cfg.Reconciliation.RetryMaxAttempts
		worker.Start(ctx)
		defer worker.Stop()
	}

	handler, err := api.NewHandler(engine, logger)
	if err != nil {
		return fmt.Errorf("failed to build handler: %w", err)
	}
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		Recorder:    m,
		Metrics:     m.Handler(),
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "driver", backend.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
