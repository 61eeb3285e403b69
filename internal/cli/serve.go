package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eshaffer321/bankrecon/internal/api"
	"github.com/eshaffer321/bankrecon/internal/application/service"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 10 * time.Minute
)

// RunServe runs the API server until SIGINT or SIGTERM.
func RunServe(cfg *config.Config, flags *ServeFlags) error {
	ctx := context.Background()
	app, err := NewApp(ctx, cfg, flags.Verbose, "api")
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	logger := app.Logger

	jobs := service.NewReconcileService(app.Orchestrator, logger.With("component", "jobs"))
	jobs.StartBackgroundCleanup(cleanupInterval)
	defer jobs.StopBackgroundCleanup()

	if cfg.Scheduler.Enabled {
		scheduler, err := service.NewScheduler(cfg.Scheduler, jobs, logger.With("component", "scheduler"))
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("scheduler started",
			"schedule", cfg.Scheduler.Schedule,
			"auto_apply", cfg.Scheduler.AutoApply,
			"next_run", scheduler.NextRun())
	}

	apiCfg := api.ConfigFrom(cfg.API)
	if flags.Port != 0 {
		apiCfg.Port = flags.Port
	}

	deps := api.Dependencies{
		Repo:       app.Store,
		Reconciler: app.Orchestrator,
		Jobs:       jobs,
		ERP:        app.Dolibarr,
		Extractor:  app.Extractor,
	}
	server := api.NewServer(apiCfg, deps, logger)

	// Handle graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
