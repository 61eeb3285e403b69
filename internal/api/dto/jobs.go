package dto

import (
	"time"

	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/application/service"
)

// StartJobResponse is returned when an auto-reconcile job is accepted.
type StartJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JobProgressResponse is the live progress of a job.
type JobProgressResponse struct {
	Phase      string `json:"phase"`
	Total      int    `json:"total"`
	Done       int    `json:"done"`
	Matched    int    `json:"matched"`
	Applied    int    `json:"applied"`
	Errors     int    `json:"errors"`
	LastUpdate string `json:"last_update"`
}

// OutcomeResponse is the per-transaction result of a job.
type OutcomeResponse struct {
	TransactionID int64              `json:"transaction_id"`
	Label         string             `json:"label"`
	Amount        string             `json:"amount"`
	Best          *CandidateResponse `json:"best_match,omitempty"`
	Applied       bool               `json:"applied"`
	Error         string             `json:"error,omitempty"`
}

// JobResultResponse summarizes a finished run.
type JobResultResponse struct {
	Processed int               `json:"processed"`
	Matched   int               `json:"matched"`
	Applied   int               `json:"applied"`
	Skipped   int               `json:"skipped"`
	Errors    int               `json:"errors"`
	DryRun    bool              `json:"dry_run"`
	Outcomes  []OutcomeResponse `json:"outcomes"`
}

// JobResponse is one auto-reconcile job.
type JobResponse struct {
	JobID       string              `json:"job_id"`
	Status      string              `json:"status"`
	Apply       bool                `json:"apply"`
	Trigger     string              `json:"trigger,omitempty"`
	StartedAt   string              `json:"started_at"`
	CompletedAt string              `json:"completed_at,omitempty"`
	Progress    JobProgressResponse `json:"progress"`
	Result      *JobResultResponse  `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// NewJobResponse converts a job snapshot.
func NewJobResponse(j *service.Job) JobResponse {
	r := JobResponse{
		JobID:     j.ID,
		Status:    string(j.Status),
		Apply:     j.Request.Apply,
		Trigger:   j.Request.Trigger,
		StartedAt: j.StartedAt.UTC().Format(time.RFC3339),
		Progress: JobProgressResponse{
			Phase:      j.Progress.Phase,
			Total:      j.Progress.Total,
			Done:       j.Progress.Done,
			Matched:    j.Progress.Matched,
			Applied:    j.Progress.Applied,
			Errors:     j.Progress.Errors,
			LastUpdate: j.Progress.LastUpdate.UTC().Format(time.RFC3339),
		},
		Result: newJobResult(j.Result),
		Error:  j.Error,
	}
	if j.CompletedAt != nil {
		r.CompletedAt = j.CompletedAt.UTC().Format(time.RFC3339)
	}
	return r
}

func newJobResult(res *reconcile.Result) *JobResultResponse {
	if res == nil {
		return nil
	}
	r := &JobResultResponse{
		Processed: res.Processed,
		Matched:   res.Matched,
		Applied:   res.Applied,
		Skipped:   res.Skipped,
		Errors:    res.Errors,
		DryRun:    res.DryRun,
		Outcomes:  make([]OutcomeResponse, 0, len(res.Outcomes)),
	}
	for _, o := range res.Outcomes {
		r.Outcomes = append(r.Outcomes, OutcomeResponse{
			TransactionID: o.TransactionID,
			Label:         o.Label,
			Amount:        o.Amount.StringFixed(2),
			Best:          NewCandidateResponse(o.Best),
			Applied:       o.Applied,
			Error:         o.Error,
		})
	}
	return r
}

// JobListResponse lists jobs, newest first.
type JobListResponse struct {
	Jobs      []JobResponse `json:"jobs"`
	Count     int           `json:"count"`
	ActiveJob string        `json:"active_job_id,omitempty"`
}
