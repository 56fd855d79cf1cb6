package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/celerix-dev/celerix-activity/internal/api"
	"github.com/celerix-dev/celerix-activity/internal/config"
	"github.com/celerix-dev/celerix-activity/internal/engine"
	"github.com/celerix-dev/celerix-activity/internal/logging"
	"github.com/celerix-dev/celerix-activity/internal/server"
	"github.com/celerix-dev/celerix-activity/internal/storage"
	pebblestore "github.com/celerix-dev/celerix-activity/internal/storage/pebble"
	"github.com/celerix-dev/celerix-activity/internal/telemetry"
	"github.com/celerix-dev/celerix-activity/internal/vault"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
	"github.com/gin-gonic/gin"
)

// slowStorageOp is the Pebble read/commit latency above which a warning is logged.
const slowStorageOp = 100 * time.Millisecond

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	logger := logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))
	logger.Info("starting activity daemon", "backend", cfg.Backend, "data_dir", cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "activityd", cfg.OTelEndpoint)
	if err != nil {
		fatal("failed to initialize tracing", err)
	}

	// 2. Initialize the backend
	masterKey, err := vault.MasterKey(cfg.MasterKey)
	if err != nil {
		fatal("invalid master key", err)
	}
	fsync, err := pebblestore.ParseFsyncMode(cfg.PebbleFsync)
	if err != nil {
		fatal("invalid pebble fsync mode", err)
	}
	location := cfg.DataDir
	if cfg.Backend == "pebble" {
		location = filepath.Join(cfg.DataDir, "pebble")
	}
	backend, err := storage.Open(ctx, cfg.Backend, location, storage.Options{
		MasterKey:     masterKey,
		Fsync:         fsync,
		PebbleMetrics: pebblestore.NewSlowLog(logger, slowStorageOp),
	})
	if err != nil {
		fatal("failed to initialize backend", err)
	}

	// 3. Start the engine; this writes the retention register on first run
	store, err := engine.Open(ctx, backend, cfg.Retention)
	if err != nil {
		fatal("failed to initialize store", err)
	}
	retention, _ := store.Retention(ctx)
	logger.Info("engine started", "retention", retention, "encrypted", masterKey != nil)

	validator := schema.NewValidator(cfg.StrictPayloads)
	logger.Info("payload validation configured", "strict", validator.Strict())

	// 4. Initialize the TCP router
	router := server.NewRouter(store, validator)
	if !cfg.DisableTLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			fatal("failed to generate TLS certificate", err)
		}
		router.SetCertificate(cert)
		logger.Info("TLS encryption enabled")
	} else {
		logger.Warn("TLS encryption disabled (ACTIVITY_DISABLE_TLS=true)")
	}

	// 5. Initialize the HTTP API
	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(&api.Handler{Store: store, Validator: validator}, logger.With("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Start servers
	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP API listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("TCP protocol listening", "port", cfg.Port)
		if err := router.Listen(cfg.Port); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", "err", err)
	}

	// 7. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	router.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "err", err)
	}
	if err := store.Close(); err != nil {
		fatal("failed to close backend", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown incomplete", "err", err)
	}
	logger.Info("shutdown complete")
}
