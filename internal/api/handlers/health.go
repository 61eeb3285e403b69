package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

const pingTimeout = 5 * time.Second

// HealthHandler handles health check requests.
type HealthHandler struct {
	repo storage.Repository
	erp  Pinger
}

// NewHealthHandler creates a new health handler. Either dependency may be
// nil, in which case its check is skipped.
func NewHealthHandler(repo storage.Repository, erp Pinger) *HealthHandler {
	return &HealthHandler{repo: repo, erp: erp}
}

// Check reports storage and ERP reachability. Storage failure answers 503,
// an unreachable ERP only degrades the status.
func (h *HealthHandler) Check(c *gin.Context) {
	response := dto.NewHealthResponse()
	status := http.StatusOK

	if h.repo != nil {
		if _, err := h.repo.TransactionStats(); err != nil {
			response.Checks["storage"] = err.Error()
			response.Status = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			response.Checks["storage"] = "ok"
		}
	}

	if h.erp != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := h.erp.Ping(ctx); err != nil {
			response.Checks["dolibarr"] = err.Error()
			if status == http.StatusOK {
				response.Status = "degraded"
			}
		} else {
			response.Checks["dolibarr"] = "ok"
		}
	}

	c.JSON(status, response)
}
