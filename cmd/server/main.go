package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Khalid-000-ME/Trio/internal/config"
	"github.com/Khalid-000-ME/Trio/internal/logging"
	"github.com/Khalid-000-ME/Trio/internal/metrics"
	"github.com/Khalid-000-ME/Trio/internal/server"
	"github.com/Khalid-000-ME/Trio/internal/storage"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "trio-audio-ingest"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("address", cfg.HTTP.Addr()),
		slog.String("route", cfg.Upload.Route),
		slog.String("uploads_dir", cfg.Storage.Dir),
		slog.String("public_path", cfg.Storage.PublicPath),
		slog.String("naming", cfg.Storage.Naming),
		slog.Bool("metrics_enabled", cfg.Metrics.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	namer, err := storage.NewNamer(cfg.Storage.Naming, cfg.Storage.Prefix, cfg.Storage.Extension)
	if err != nil {
		logger.Error("Invalid storage naming", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := storage.NewDiskStore(storage.Config{
		Dir:        cfg.Storage.Dir,
		PublicPath: cfg.Storage.PublicPath,
		Namer:      namer,
		CreateDir:  cfg.Storage.CreateDir,
	})
	if err != nil {
		logger.Error("Failed to create storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Storage initialized", slog.String("dir", store.Dir()))

	httpServer := server.NewHTTPServer(cfg, logger, store, appMetrics, prometheus.DefaultGatherer)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully", slog.String("address", cfg.HTTP.Addr()))

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeoutDuration())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	stats := httpServer.Stats()
	logger.Info("Final upload statistics",
		slog.Uint64("uploads_received", stats.UploadsReceived),
		slog.Uint64("uploads_stored", stats.UploadsStored),
		slog.Uint64("uploads_rejected", stats.UploadsRejected),
		slog.Uint64("storage_failures", stats.StorageFailures),
		slog.Uint64("bytes_stored", stats.BytesStored),
	)

	logger.Info("Service stopped")
}
