package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/application/service"
)

const maxBatchItems = 500

// ReconcileHandler handles batch reconciliation and auto-reconcile jobs.
type ReconcileHandler struct {
	*Base
	reconciler Reconciler
	jobs       JobService
}

// NewReconcileHandler creates a new reconcile handler. jobs may be nil when
// background jobs are not offered.
func NewReconcileHandler(reconciler Reconciler, jobs JobService, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		Base:       NewBase(nil, logger),
		reconciler: reconciler,
		jobs:       jobs,
	}
}

// Batch handles POST /api/reconcile/batch. Each item is applied on its
// own; failures are reported per item.
func (h *ReconcileHandler) Batch(c *gin.Context) {
	var req dto.BatchReconcileRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	if len(req.Items) == 0 {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("items must not be empty"))
		return
	}
	if len(req.Items) > maxBatchItems {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("too many items"))
		return
	}

	reqs := make([]reconcile.ApplyRequest, 0, len(req.Items))
	for _, it := range req.Items {
		reqs = append(reqs, applyRequest(it.TransactionID, it.ReconcileRequest))
	}
	result := h.reconciler.ApplyBatch(c.Request.Context(), reqs)

	h.logger.Info("batch reconcile finished",
		"items", len(reqs),
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	h.WriteJSON(c, http.StatusOK, dto.NewBatchResponse(result))
}

// MatchStatement handles POST /api/match: statement rows are scored against
// the unpaid ERP invoices without being imported.
func (h *ReconcileHandler) MatchStatement(c *gin.Context) {
	var req dto.MatchStatementRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	if len(req.Transactions) == 0 {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("transactions must not be empty"))
		return
	}
	if len(req.Transactions) > maxBatchItems {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("too many transactions"))
		return
	}
	txs, err := req.ToTransactions()
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	matches, err := h.reconciler.MatchStatement(c.Request.Context(), txs, req.AccountID)
	if err != nil {
		h.WriteServiceError(c, err, "invoice")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NewMatchStatementResponse(matches))
}

// StartJob handles POST /api/reconcile/jobs
func (h *ReconcileHandler) StartJob(c *gin.Context) {
	var req dto.StartJobRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	jobID, err := h.jobs.StartJob(c.Request.Context(), service.JobRequest{
		Apply:         req.Apply,
		CreatePayment: dto.Bool(req.CreatePayment, req.Apply),
		Limit:         req.Limit,
		Trigger:       "api",
	})
	if err != nil {
		if errors.Is(err, service.ErrJobRunning) {
			h.WriteError(c, http.StatusConflict, dto.NewAPIError("job_conflict", err.Error()))
			return
		}
		h.WriteServiceError(c, err, "job")
		return
	}

	h.WriteJSON(c, http.StatusAccepted, dto.StartJobResponse{
		JobID:   jobID,
		Status:  string(service.StatusPending),
		Message: "auto-reconcile started",
	})
}

// ListJobs handles GET /api/reconcile/jobs
func (h *ReconcileHandler) ListJobs(c *gin.Context) {
	jobs := h.jobs.ListJobs()
	response := dto.JobListResponse{
		Jobs:      make([]dto.JobResponse, 0, len(jobs)),
		Count:     len(jobs),
		ActiveJob: h.jobs.ActiveJob(),
	}
	for _, j := range jobs {
		response.Jobs = append(response.Jobs, dto.NewJobResponse(j))
	}
	h.WriteJSON(c, http.StatusOK, response)
}

// GetJob handles GET /api/reconcile/jobs/:id
func (h *ReconcileHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Param("id"))
	if err != nil {
		h.WriteServiceError(c, err, "job")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NewJobResponse(job))
}

// CancelJob handles DELETE /api/reconcile/jobs/:id
func (h *ReconcileHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobs.CancelJob(id); err != nil {
		h.WriteServiceError(c, err, "job")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.MessageResponse{Message: "job " + id + " cancelled"})
}
