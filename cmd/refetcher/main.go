package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/refetcher/internal/core/config"
	"github.com/vietddude/refetcher/internal/indexing/health"
	"github.com/vietddude/refetcher/internal/indexing/refetch"
	redisclient "github.com/vietddude/refetcher/internal/infra/redis"
	"github.com/vietddude/refetcher/internal/infra/storage/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	migrationsDir := flag.String("migrations", "migrations", "Path to goose migrations")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Load Configuration first (before setting up logger)
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Fall back to default logger for config load errors
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Simplifed logging logic (debug < info)
	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	// Initialize stylelog with tint.Options for level control
	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	slog.Info("Logger initialized", "level", slogLevel.String())

	// Setup Context with Cancellation on OS signals; the workflow itself is
	// one-shot and idempotent, a restart re-enumerates whatever is left.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to init db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(*migrationsDir); err != nil {
		slog.Error("Failed to migrate db", "error", err)
		os.Exit(1)
	}
	db.StartMetricsCollector(ctx)

	// Redis failure sink is optional
	var sink refetch.FailureSink
	if cfg.Redis.URL != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		sink = redisClient
	}

	wfCfg, err := cfg.Refetch.Workflow()
	if err != nil {
		slog.Error("Invalid refetch config", "error", err)
		os.Exit(1)
	}

	workflow := refetch.New(wfCfg, postgres.NewSuspectBlockRepo(db), sink)

	healthServer := health.NewServer(workflow, db, cfg.Server.Port)
	go func() {
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("Health server failed", "error", err)
		}
	}()

	runErr := workflow.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		slog.Warn("Error stopping health server", "error", err)
	}

	if runErr != nil {
		slog.Error("Correction pass failed", "error", runErr)
		os.Exit(1)
	}
	if workflow.Dropped() > 0 {
		slog.Warn("Correction pass finished with dropped batches", "dropped", workflow.Dropped())
		os.Exit(1)
	}
}
