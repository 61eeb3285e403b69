package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/adapters/extractor"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/logging"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// ErrNoDolibarr is returned when the ERP URL or API key is missing.
var ErrNoDolibarr = errors.New("dolibarr url and api key are required (dolibarr.url, DOLIBARR_API_KEY)")

// LoadConfig reads .env when present, then the config file, falling back to
// environment variables when the file does not exist.
func LoadConfig(path string) *config.Config {
	_ = godotenv.Load()
	return config.LoadOrEnvWithPath(path)
}

// App holds the wired dependencies shared by the commands.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *storage.Storage
	Dolibarr     *dolibarr.Client
	Orchestrator *reconcile.Orchestrator
	Extractor    extractor.Extractor // nil when no provider key is configured
}

// NewApp opens storage and builds the ERP client and orchestrator.
func NewApp(ctx context.Context, cfg *config.Config, verbose bool, system string) (*App, error) {
	loggingCfg := cfg.Observability.Logging
	if verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, system)

	apiKey := cfg.GetAPIKey(cfg.Dolibarr.APIKey, "DOLIBARR_API_KEY", "DOLAPIKEY")
	if cfg.Dolibarr.URL == "" || apiKey == "" {
		return nil, ErrNoDolibarr
	}
	client := dolibarr.NewClientFromConfig(cfg.Dolibarr, apiKey, logger.With("component", "dolibarr"))

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	store.SetLogger(logger.With("component", "storage"))
	recoverClaims(store, logger)

	orch, err := reconcile.NewFromConfig(cfg, client, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("invalid matching config: %w", err)
	}

	ext, err := extractor.New(ctx, cfg, logger.With("component", "extractor"))
	switch {
	case errors.Is(err, extractor.ErrNoAPIKey):
		logger.Info("invoice extraction disabled, no API key", "provider", cfg.Extractor.Provider)
	case err != nil:
		logger.Warn("invoice extraction disabled", "error", err)
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Dolibarr:     client,
		Orchestrator: orch,
		Extractor:    ext,
	}, nil
}

// recoverClaims returns transactions left applying by an interrupted run to
// pending. Those with a recorded payment are only reported.
func recoverClaims(store *storage.Storage, logger *slog.Logger) {
	released, kept, err := store.RecoverClaims()
	if err != nil {
		logger.Warn("failed to recover interrupted applies", "error", err)
		return
	}
	if released > 0 {
		logger.Info("interrupted applies returned to pending", "count", released)
	}
	for _, id := range kept {
		logger.Warn("transaction has a payment but was not reconciled, check the ERP then reset it", "tx_id", id)
	}
}

// Close releases the storage.
func (a *App) Close() error {
	return a.Store.Close()
}
