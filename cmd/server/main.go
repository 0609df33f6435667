package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/filecleaner/internal/artifact"
	"github.com/JonMunkholm/filecleaner/internal/config"
	"github.com/JonMunkholm/filecleaner/internal/core"
	"github.com/JonMunkholm/filecleaner/internal/fetch"
	"github.com/JonMunkholm/filecleaner/internal/history"
	"github.com/JonMunkholm/filecleaner/internal/logging"
	"github.com/JonMunkholm/filecleaner/internal/metrics"
	"github.com/JonMunkholm/filecleaner/internal/tabular"
	"github.com/JonMunkholm/filecleaner/internal/transform"
	"github.com/JonMunkholm/filecleaner/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"storage_dir", cfg.Storage.Dir,
		"retention", cfg.Storage.Retention,
		"jobs_max_concurrent", cfg.Jobs.MaxConcurrent,
		logging.Size("download_max", cfg.Download.MaxBytes),
		"history_enabled", cfg.Database.Enabled(),
	)

	store, err := artifact.NewStore(cfg.Storage.Dir, cfg.Storage.Retention)
	if err != nil {
		slog.Error("failed to open storage directory", "dir", cfg.Storage.Dir, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Job history is optional; without a database the service runs stateless.
	jobHistory := history.New(nil)
	if cfg.Database.Enabled() {
		pool, err := history.Connect(ctx, history.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		// Log which database we connected to
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("connected to database")
		}

		jobHistory = history.New(pool)
		if err := jobHistory.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare job history schema", "error", err)
			os.Exit(1)
		}
	}

	recorder := metrics.NewPrometheusRecorder()

	service := core.NewService(store, core.Options{
		Downloader: fetch.New(fetch.Config{
			MaxBytes:  cfg.Download.MaxBytes,
			Timeout:   cfg.Download.Timeout,
			UserAgent: cfg.Download.UserAgent,
		}, nil),
		Loader:    tabular.NewLoader(),
		Pipeline:  transform.Default(cfg.Jobs.RenameSuffix),
		Limiter:   core.NewJobLimiter(cfg.Jobs.MaxConcurrent, cfg.Jobs.MaxWaitTime),
		Metrics:   recorder,
		History:   jobHistory,
		PublicURL: cfg.Server.BaseURL(),
	})

	server := web.NewServer(service, web.Options{
		Metrics:        recorder.Handler(),
		TrustedProxies: cfg.Server.TrustedProxies,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
		PreviewRows:    cfg.Jobs.PreviewRows,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Start the expiry sweeper with config values
	go service.StartSweeper(jobCtx, core.SweepConfig{
		Interval:         cfg.Storage.SweepInterval,
		MaxAge:           cfg.Storage.Retention,
		HistoryRetention: cfg.Storage.HistoryRetention,
	})

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active jobs to complete (with timeout)
		if status := service.JobLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for jobs to complete", "active", status.Active)
		}
		if err := service.WaitForJobs(shutdownCtx); err != nil {
			slog.Warn("jobs did not complete in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr(), "public_url", cfg.Server.BaseURL())
	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("server stopped")
}
