package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/eshaffer321/bankrecon/internal/adapters/ingest"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
)

// RunReconcile imports the optional statement file, then runs one
// auto-reconcile pass over the pending transactions and prints a summary.
func RunReconcile(cfg *config.Config, flags *ReconcileFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, flags.Verbose, "reconcile")
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	PrintHeader(!flags.Apply)

	if flags.File != "" {
		if err := importFile(app.Orchestrator, flags.File); err != nil {
			return err
		}
	}

	progress := NewProgressPrinter(os.Stderr)
	result, err := app.Orchestrator.AutoReconcile(ctx, flags.Options(), progress.Update)
	progress.Done()
	if result != nil {
		PrintReconcileSummary(os.Stdout, result)
	}
	if err != nil {
		return fmt.Errorf("auto-reconcile stopped: %w", err)
	}

	if stats, err := app.Store.TransactionStats(); err == nil {
		PrintStats(os.Stdout, stats)
	}
	return nil
}

func importFile(orch *reconcile.Orchestrator, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	rows, err := ingest.Parse(name, f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	result, err := orch.Import(name, rows)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", name, err)
	}
	PrintImportSummary(os.Stdout, name, result)
	return nil
}
