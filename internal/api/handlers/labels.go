package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/domain/labels"
)

// LabelsHandler previews label parsing. It needs no storage or ERP.
type LabelsHandler struct {
	*Base
}

// NewLabelsHandler creates a new labels handler.
func NewLabelsHandler(logger *slog.Logger) *LabelsHandler {
	return &LabelsHandler{Base: NewBase(nil, logger)}
}

// Preview handles GET /api/labels/preview?label=
func (h *LabelsHandler) Preview(c *gin.Context) {
	label := c.Query("label")
	if label == "" {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("label is required"))
		return
	}

	response := dto.LabelPreviewResponse{Label: label, Variants: []string{}}
	if name, ok := labels.CounterpartyName(label); ok {
		response.Counterparty = name
		response.Variants = labels.SearchVariants(name)
	}
	if ref, ok := labels.InvoiceReference(label); ok {
		response.InvoiceRef = ref
	}
	if p, ok := labels.PeriodFromLabel(label); ok {
		response.Period = &p
	}
	h.WriteJSON(c, http.StatusOK, response)
}
