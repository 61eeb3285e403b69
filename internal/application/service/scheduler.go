package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
)

// Scheduler starts an auto-reconcile job on a cron schedule. A tick that
// finds a job still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	service *ReconcileService
	request JobRequest
	entry   cron.EntryID
	logger  *slog.Logger
}

// NewScheduler registers the configured schedule. It does not start it.
func NewScheduler(cfg config.SchedulerConfig, svc *ReconcileService, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		service: svc,
		request: JobRequest{
			Apply:         cfg.AutoApply,
			CreatePayment: cfg.AutoApply,
			Trigger:       "schedule",
		},
		logger: logger,
	}

	id, err := s.cron.AddFunc(cfg.Schedule, s.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	s.entry = id
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "next_run", s.NextRun())
}

// Stop stops the scheduler and returns a context done once a running tick
// has returned. Jobs started by ticks keep running in the service.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// NextRun is the time of the next tick, zero before Start.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) tick() {
	id, err := s.service.StartJob(context.Background(), s.request)
	switch {
	case errors.Is(err, ErrJobRunning):
		s.logger.Info("scheduled run skipped, job still running", "active_job", s.service.ActiveJob())
	case err != nil:
		s.logger.Error("scheduled run failed to start", "error", err)
	default:
		s.logger.Info("scheduled run started", "job_id", id)
	}
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
