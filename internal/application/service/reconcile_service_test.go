package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
)

// fakeRunner blocks until released, then returns result/err.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []reconcile.Options
	release chan struct{}
	started chan struct{}
	result  *reconcile.Result
	err     error

	ignoreCancel bool // keep running after ctx is cancelled, like a run stuck in an ERP call
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		release: make(chan struct{}),
		started: make(chan struct{}, 10),
		result:  &reconcile.Result{Processed: 3, Matched: 2, Applied: 1, Skipped: 1},
	}
}

func (f *fakeRunner) AutoReconcile(ctx context.Context, opts reconcile.Options, progress reconcile.ProgressFunc) (*reconcile.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()

	progress(reconcile.Progress{Done: 1, Total: 3, Matched: 1})
	f.started <- struct{}{}

	if f.ignoreCancel {
		<-f.release
		return f.result, f.err
	}
	select {
	case <-f.release:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitStatus(t *testing.T, svc *ReconcileService, id string, want JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = svc.GetJob(id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func waitIdle(t *testing.T, svc *ReconcileService) {
	t.Helper()
	require.Eventually(t, func() bool { return svc.ActiveJob() == "" }, 2*time.Second, 5*time.Millisecond)
}

func TestReconcileService_JobLifecycle(t *testing.T) {
	runner := newFakeRunner()
	svc := NewReconcileService(runner, testLogger())

	id, err := svc.StartJob(context.Background(), JobRequest{Apply: true, Trigger: "api"})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "job ids are uuids")

	<-runner.started
	running := waitStatus(t, svc, id, StatusRunning)
	assert.Equal(t, 1, running.Progress.Done)
	assert.Equal(t, 3, running.Progress.Total)
	assert.Equal(t, id, svc.ActiveJob())

	close(runner.release)
	done := waitStatus(t, svc, id, StatusCompleted)

	require.NotNil(t, done.Result)
	assert.Equal(t, 2, done.Progress.Matched)
	assert.Equal(t, 1, done.Progress.Applied)
	assert.NotNil(t, done.CompletedAt)
	waitIdle(t, svc)

	require.Len(t, runner.calls, 1)
	assert.True(t, runner.calls[0].Apply)
	assert.Equal(t, "auto", runner.calls[0].ReconciledBy)
}

func TestReconcileService_OneJobAtATime(t *testing.T) {
	runner := newFakeRunner()
	svc := NewReconcileService(runner, testLogger())

	first, err := svc.StartJob(context.Background(), JobRequest{})
	require.NoError(t, err)
	<-runner.started

	_, err = svc.StartJob(context.Background(), JobRequest{})
	assert.ErrorIs(t, err, ErrJobRunning)

	close(runner.release)
	waitStatus(t, svc, first, StatusCompleted)
	waitIdle(t, svc)

	second, err := svc.StartJob(context.Background(), JobRequest{})
	require.NoError(t, err)
	<-runner.started
	waitStatus(t, svc, second, StatusCompleted)
	assert.Len(t, svc.ListJobs(), 2)
}

func TestReconcileService_Failure(t *testing.T) {
	runner := newFakeRunner()
	runner.err = errors.New("database is locked")
	close(runner.release)
	svc := NewReconcileService(runner, testLogger())

	id, err := svc.StartJob(context.Background(), JobRequest{})
	require.NoError(t, err)

	job := waitStatus(t, svc, id, StatusFailed)
	assert.Equal(t, "database is locked", job.Error)
	assert.Equal(t, "failed", job.Progress.Phase)
	waitIdle(t, svc)
}

func TestReconcileService_Cancel(t *testing.T) {
	runner := newFakeRunner()
	svc := NewReconcileService(runner, testLogger())

	id, err := svc.StartJob(context.Background(), JobRequest{})
	require.NoError(t, err)
	<-runner.started

	require.NoError(t, svc.CancelJob(id))

	job, err := svc.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, job.Status)
	require.Eventually(t, func() bool { return svc.ActiveJob() == "" }, time.Second, 5*time.Millisecond,
		"the slot is freed once the runner returns")

	// the runner returning afterwards does not overwrite the status
	time.Sleep(20 * time.Millisecond)
	job, _ = svc.GetJob(id)
	assert.Equal(t, StatusCancelled, job.Status)

	assert.ErrorIs(t, svc.CancelJob(id), ErrJobFinished)
	assert.ErrorIs(t, svc.CancelJob("nope"), ErrJobNotFound)
}

func TestReconcileService_GetJob_NotFound(t *testing.T) {
	svc := NewReconcileService(newFakeRunner(), nil)

	_, err := svc.GetJob("non-existent")

	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Empty(t, svc.ListJobs())
}

func TestReconcileService_MarkStaleJobsAsFailed(t *testing.T) {
	runner := newFakeRunner()
	svc := NewReconcileService(runner, testLogger())

	id, err := svc.StartJob(context.Background(), JobRequest{})
	require.NoError(t, err)
	<-runner.started
	waitStatus(t, svc, id, StatusRunning)

	assert.Equal(t, 0, svc.MarkStaleJobsAsFailed(time.Hour, time.Hour))

	svc.jobsMutex.Lock()
	svc.jobs[id].Progress.LastUpdate = time.Now().Add(-2 * time.Hour)
	svc.jobsMutex.Unlock()

	assert.Equal(t, 1, svc.MarkStaleJobsAsFailed(time.Hour, 24*time.Hour))

	job, _ := svc.GetJob(id)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.Error, "no progress update")
	waitIdle(t, svc)
}

func TestReconcileService_CancelKeepsSlotUntilRunReturns(t *testing.T) {
	runner := newFakeRunner()
	runner.ignoreCancel = true
	svc := NewReconcileService(runner, testLogger())

	id, err := svc.StartJob(context.Background(), JobRequest{Apply: true})
	require.NoError(t, err)
	<-runner.started

	require.NoError(t, svc.CancelJob(id))

	// The cancelled run may still be applying matches
	assert.Equal(t, id, svc.ActiveJob())
	_, err = svc.StartJob(context.Background(), JobRequest{Apply: true})
	assert.ErrorIs(t, err, ErrJobRunning)

	close(runner.release)
	waitIdle(t, svc)

	job, _ := svc.GetJob(id)
	assert.Equal(t, StatusCancelled, job.Status)

	second, err := svc.StartJob(context.Background(), JobRequest{})
	require.NoError(t, err)
	<-runner.started
	waitStatus(t, svc, second, StatusCompleted)
}

func TestReconcileService_CleanupOldJobs(t *testing.T) {
	svc := NewReconcileService(newFakeRunner(), testLogger())
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	svc.jobs["old"] = &Job{ID: "old", Status: StatusCompleted, CompletedAt: &old}
	svc.jobs["recent"] = &Job{ID: "recent", Status: StatusFailed, CompletedAt: &recent}
	svc.jobs["live"] = &Job{ID: "live", Status: StatusRunning, StartedAt: old}

	removed := svc.CleanupOldJobs(24 * time.Hour)

	assert.Equal(t, 1, removed)
	_, err := svc.GetJob("old")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = svc.GetJob("live")
	assert.NoError(t, err)
}

func TestReconcileService_BackgroundCleanup(t *testing.T) {
	svc := NewReconcileService(newFakeRunner(), testLogger())
	old := time.Now().Add(-48 * time.Hour)
	svc.jobs["old"] = &Job{ID: "old", Status: StatusCompleted, CompletedAt: &old}

	svc.StartBackgroundCleanup(10 * time.Millisecond)
	require.Eventually(t, func() bool {
		return len(svc.ListJobs()) == 0
	}, time.Second, 5*time.Millisecond)
	svc.StopBackgroundCleanup()
	svc.StopBackgroundCleanup()
}

func TestScheduler(t *testing.T) {
	t.Run("invalid timezone", func(t *testing.T) {
		_, err := NewScheduler(config.SchedulerConfig{Schedule: "@every 1m", Timezone: "Mars/Olympus"}, nil, testLogger())
		assert.ErrorContains(t, err, "timezone")
	})

	t.Run("invalid schedule", func(t *testing.T) {
		_, err := NewScheduler(config.SchedulerConfig{Schedule: "every now and then"}, nil, testLogger())
		assert.ErrorContains(t, err, "invalid schedule")
	})

	t.Run("tick starts a job and skips while running", func(t *testing.T) {
		runner := newFakeRunner()
		svc := NewReconcileService(runner, testLogger())
		s, err := NewScheduler(config.SchedulerConfig{Schedule: "0 6 * * *", Timezone: "Pacific/Tahiti", AutoApply: true}, svc, testLogger())
		require.NoError(t, err)

		s.tick()
		<-runner.started
		s.tick()

		jobs := svc.ListJobs()
		require.Len(t, jobs, 1)
		assert.Equal(t, "schedule", jobs[0].Request.Trigger)
		assert.True(t, jobs[0].Request.Apply)

		close(runner.release)
		waitStatus(t, svc, jobs[0].ID, StatusCompleted)
	})

	t.Run("next run in configured zone", func(t *testing.T) {
		s, err := NewScheduler(config.SchedulerConfig{Schedule: "0 6 * * *", Timezone: "Pacific/Tahiti"}, NewReconcileService(newFakeRunner(), nil), testLogger())
		require.NoError(t, err)

		s.Start()
		defer s.Stop()

		next := s.NextRun()
		require.False(t, next.IsZero())
		assert.Equal(t, 6, next.In(next.Location()).Hour())
		assert.Equal(t, "Pacific/Tahiti", next.Location().String())
	})
}
