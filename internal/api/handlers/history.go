package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// HistoryHandler exposes payments created in the ERP.
type HistoryHandler struct {
	*Base
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(repo storage.Repository, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{Base: NewBase(repo, logger)}
}

// Payments handles GET /api/history/payments
func (h *HistoryHandler) Payments(c *gin.Context) {
	filter := storage.PaymentFilter{
		Status: storage.PaymentStatus(c.Query("status")),
		Limit:  ParseIntParam(c, "limit", 100),
		Offset: ParseIntParam(c, "offset", 0),
	}
	if filter.Status != "" && filter.Status != storage.PaymentCreated && filter.Status != storage.PaymentCancelled {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("status must be created or cancelled"))
		return
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			h.WriteError(c, http.StatusBadRequest, dto.BadRequestError(name+" must be YYYY-MM-DD"))
			return
		}
		*dst = &t
	}

	payments, err := h.repo.ListPayments(filter)
	if err != nil {
		h.WriteServiceError(c, err, "payment")
		return
	}
	response := dto.PaymentListResponse{
		Payments: make([]dto.PaymentResponse, 0, len(payments)),
		Count:    len(payments),
	}
	for _, p := range payments {
		response.Payments = append(response.Payments, dto.NewPaymentResponse(p))
	}
	h.WriteJSON(c, http.StatusOK, response)
}

// Statistics handles GET /api/history/statistics
func (h *HistoryHandler) Statistics(c *gin.Context) {
	stats, err := h.repo.PaymentStatistics()
	if err != nil {
		h.WriteServiceError(c, err, "payment")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NewPaymentStatsResponse(stats))
}

// Cancel handles POST /api/history/payments/:id/cancel. Only the local
// record is flagged; the ERP payment must be removed in Dolibarr.
func (h *HistoryHandler) Cancel(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	var req dto.CancelPaymentRequest
	if !h.bindJSON(c, &req, true) {
		return
	}
	if err := h.repo.CancelPayment(id, req.Reason); err != nil {
		h.WriteServiceError(c, err, "payment")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.MessageResponse{Message: "payment marked as cancelled"})
}
