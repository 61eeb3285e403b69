package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
)

// JobStatus represents the current state of an auto-reconcile job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Job staleness thresholds
const (
	// DefaultJobStaleThreshold is how long a job can go without progress
	// updates before it is considered hung.
	DefaultJobStaleThreshold = 30 * time.Minute

	// DefaultJobMaxDuration is the longest a job may run before it is
	// forcefully marked as failed.
	DefaultJobMaxDuration = 2 * time.Hour

	// DefaultJobRetention is how long finished jobs stay listed.
	DefaultJobRetention = 24 * time.Hour
)

var (
	// ErrJobRunning is returned when a job is started while another runs.
	ErrJobRunning = errors.New("an auto-reconcile job is already running")

	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinished is returned when cancelling a job that already ended.
	ErrJobFinished = errors.New("job already finished")
)

// Runner runs one auto-reconcile pass. *reconcile.Orchestrator implements it.
type Runner interface {
	AutoReconcile(ctx context.Context, opts reconcile.Options, progress reconcile.ProgressFunc) (*reconcile.Result, error)
}

// JobRequest holds parameters for starting a job.
type JobRequest struct {
	Apply         bool   `json:"apply"`
	CreatePayment bool   `json:"create_payment"`
	Limit         int    `json:"limit,omitempty"`
	Trigger       string `json:"trigger,omitempty"` // api, schedule, cli
}

// JobProgress holds real-time progress information.
type JobProgress struct {
	Phase      string    `json:"phase"` // pending, matching, completed, failed, cancelled
	Total      int       `json:"total"`
	Done       int       `json:"done"`
	Matched    int       `json:"matched"`
	Applied    int       `json:"applied"`
	Errors     int       `json:"errors"`
	LastUpdate time.Time `json:"last_update"`
}

// Job is a running or finished auto-reconcile job. Values returned by the
// service are snapshots.
type Job struct {
	ID          string            `json:"id"`
	Status      JobStatus         `json:"status"`
	Request     JobRequest        `json:"request"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Progress    JobProgress       `json:"progress"`
	Result      *reconcile.Result `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`

	cancelFunc context.CancelFunc
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// ReconcileService runs auto-reconcile passes as background jobs, one at a
// time.
type ReconcileService struct {
	runner Runner
	logger *slog.Logger

	jobs      map[string]*Job
	active    string // id of the job holding the run slot
	jobsMutex sync.RWMutex

	// Background cleanup
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewReconcileService creates a new job service.
func NewReconcileService(runner Runner, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		runner: runner,
		logger: logger,
		jobs:   make(map[string]*Job),
	}
}

// StartJob starts a new job asynchronously and returns its id.
// The passed context is not the parent of the job: jobs outlive the HTTP
// request that starts them. Use CancelJob to stop one.
func (s *ReconcileService) StartJob(_ context.Context, req JobRequest) (string, error) {
	jobCtx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	job := &Job{
		ID:         uuid.NewString(),
		Status:     StatusPending,
		Request:    req,
		StartedAt:  now,
		Progress:   JobProgress{Phase: "pending", LastUpdate: now},
		cancelFunc: cancel,
	}

	s.jobsMutex.Lock()
	if s.active != "" {
		s.jobsMutex.Unlock()
		cancel()
		return "", ErrJobRunning
	}
	s.active = job.ID
	s.jobs[job.ID] = job
	s.jobsMutex.Unlock()

	go s.runJob(jobCtx, job.ID, req)

	s.logger.Info("auto-reconcile job started",
		"job_id", job.ID,
		"apply", req.Apply,
		"trigger", req.Trigger,
	)
	return job.ID, nil
}

// GetJob returns a snapshot of a job.
func (s *ReconcileService) GetJob(jobID string) (*Job, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	snapshot := *job
	return &snapshot, nil
}

// ListJobs returns snapshots of all jobs, most recent first.
func (s *ReconcileService) ListJobs() []*Job {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}

// ActiveJob returns the id of the running job, or "".
func (s *ReconcileService) ActiveJob() string {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()
	return s.active
}

// CancelJob cancels a pending or running job. The run slot stays taken
// until the job's goroutine has returned.
func (s *ReconcileService) CancelJob(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Finished() {
		return fmt.Errorf("%w: status=%s", ErrJobFinished, job.Status)
	}

	job.cancelFunc()
	now := time.Now()
	job.Status = StatusCancelled
	job.CompletedAt = &now
	job.Progress.Phase = "cancelled"
	job.Progress.LastUpdate = now

	s.logger.Info("auto-reconcile job cancelled", "job_id", jobID)
	return nil
}

// runJob executes the job in a background goroutine.
func (s *ReconcileService) runJob(ctx context.Context, jobID string, req JobRequest) {
	defer s.release(jobID)
	defer func() {
		if r := recover(); r != nil {
			s.finishJob(jobID, nil, fmt.Errorf("job panicked: %v", r))
		}
	}()

	s.update(jobID, func(job *Job) {
		job.Status = StatusRunning
		job.Progress.Phase = "matching"
	})

	opts := reconcile.Options{
		Apply:         req.Apply,
		CreatePayment: req.CreatePayment,
		Limit:         req.Limit,
		ReconciledBy:  "auto",
	}
	result, err := s.runner.AutoReconcile(ctx, opts, func(p reconcile.Progress) {
		s.update(jobID, func(job *Job) {
			job.Progress.Total = p.Total
			job.Progress.Done = p.Done
			job.Progress.Matched = p.Matched
			job.Progress.Applied = p.Applied
			job.Progress.Errors = p.Errors
		})
	})
	// A job cancelled or failed by the sweeper is already finished and
	// finishJob leaves it as is.
	s.finishJob(jobID, result, err)
}

// update applies fn to a job that is still live.
func (s *ReconcileService) update(jobID string, fn func(*Job)) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists && !job.Finished() {
		fn(job)
		job.Progress.LastUpdate = time.Now()
	}
}

// finishJob marks a live job completed or failed.
func (s *ReconcileService) finishJob(jobID string, result *reconcile.Result, err error) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Finished() {
		return
	}

	now := time.Now()
	job.CompletedAt = &now
	job.Progress.LastUpdate = now
	job.Result = result

	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		job.Progress.Phase = "failed"
		s.logger.Error("auto-reconcile job failed", "job_id", jobID, "error", err)
		return
	}

	job.Status = StatusCompleted
	job.Progress.Phase = "completed"
	if result != nil {
		job.Progress.Done = result.Processed
		job.Progress.Matched = result.Matched
		job.Progress.Applied = result.Applied
		job.Progress.Errors = result.Errors
	}
	s.logger.Info("auto-reconcile job completed",
		"job_id", jobID,
		"processed", job.Progress.Done,
		"matched", job.Progress.Matched,
		"applied", job.Progress.Applied,
		"errors", job.Progress.Errors,
	)
}

// release frees the run slot if jobID holds it.
func (s *ReconcileService) release(jobID string) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if s.active == jobID {
		s.active = ""
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (s *ReconcileService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range s.jobs {
		if job.Finished() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("cleaned up old jobs", "removed", removed)
	}
	return removed
}

// MarkStaleJobsAsFailed fails live jobs that ran longer than maxDuration or
// reported no progress for staleThreshold, and cancels their context. The
// slot is freed once the job's goroutine returns.
func (s *ReconcileService) MarkStaleJobsAsFailed(staleThreshold, maxDuration time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	now := time.Now()
	marked := 0
	for id, job := range s.jobs {
		if job.Finished() {
			continue
		}

		reason := ""
		switch {
		case now.Sub(job.StartedAt) > maxDuration:
			reason = fmt.Sprintf("exceeded max duration of %v (started %v ago)", maxDuration, now.Sub(job.StartedAt).Round(time.Second))
		case now.Sub(job.Progress.LastUpdate) > staleThreshold:
			reason = fmt.Sprintf("no progress update for %v (threshold: %v)", now.Sub(job.Progress.LastUpdate).Round(time.Second), staleThreshold)
		default:
			continue
		}

		if job.cancelFunc != nil {
			job.cancelFunc()
		}
		lastUpdate := job.Progress.LastUpdate
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = "job marked as stale: " + reason
		job.Progress.Phase = "failed"
		job.Progress.LastUpdate = now

		s.logger.Warn("marked stale job as failed",
			"job_id", id,
			"reason", reason,
			"started_at", job.StartedAt,
			"last_update", lastUpdate,
		)
		marked++
	}
	return marked
}

// StartBackgroundCleanup periodically fails stale jobs and drops finished
// ones older than DefaultJobRetention. Call StopBackgroundCleanup to stop it.
func (s *ReconcileService) StartBackgroundCleanup(checkInterval time.Duration) {
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		s.logger.Info("background job cleanup started",
			"check_interval", checkInterval,
			"stale_threshold", DefaultJobStaleThreshold,
			"max_duration", DefaultJobMaxDuration,
		)

		for {
			select {
			case <-s.cleanupStop:
				s.logger.Info("background job cleanup stopped")
				return
			case <-ticker.C:
				if n := s.MarkStaleJobsAsFailed(DefaultJobStaleThreshold, DefaultJobMaxDuration); n > 0 {
					s.logger.Info("marked stale jobs as failed", "count", n)
				}
				s.CleanupOldJobs(DefaultJobRetention)
			}
		}
	}()
}

// StopBackgroundCleanup stops the cleanup goroutine and waits for it.
func (s *ReconcileService) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}
	close(s.cleanupStop)
	<-s.cleanupDone
	s.cleanupStop = nil
}
