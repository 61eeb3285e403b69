package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/adapters/extractor"
	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
)

const maxInvoiceSize = 20 << 20

// InvoicesHandler turns invoice documents into draft supplier invoices.
type InvoicesHandler struct {
	*Base
	reconciler Reconciler
	extractor  extractor.Extractor
}

// NewInvoicesHandler creates a new invoices handler. ext may be nil when no
// extraction provider is configured.
func NewInvoicesHandler(reconciler Reconciler, ext extractor.Extractor, logger *slog.Logger) *InvoicesHandler {
	return &InvoicesHandler{
		Base:       NewBase(nil, logger),
		reconciler: reconciler,
		extractor:  ext,
	}
}

// Extract handles POST /api/invoices/extract with a multipart "file". The
// answer is a preview for review; nothing is written to the ERP.
func (h *InvoicesHandler) Extract(c *gin.Context) {
	if h.extractor == nil {
		h.WriteError(c, http.StatusServiceUnavailable, dto.NewAPIError(dto.ErrCodeUnavailable, "invoice extraction is not configured"))
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("file is required"))
		return
	}
	if fh.Size > maxInvoiceSize {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("file too large"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.WriteServiceError(c, err, "file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxInvoiceSize))
	if err != nil {
		h.WriteServiceError(c, err, "file")
		return
	}

	inv, err := h.extractor.Extract(c.Request.Context(), filepath.Base(fh.Filename), data)
	if err != nil {
		if errors.Is(err, extractor.ErrEmptyDocument) {
			h.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
			return
		}
		if errors.Is(err, extractor.ErrEmptyResponse) {
			h.WriteError(c, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
			return
		}
		h.logger.Error("invoice extraction failed", "file", fh.Filename, "error", err)
		h.WriteError(c, http.StatusBadGateway, dto.UpstreamError("extraction failed: "+err.Error()))
		return
	}
	h.WriteJSON(c, http.StatusOK, extractor.NewPreview(inv))
}

// Supplier handles POST /api/invoices/supplier with reviewed invoice data.
// When transaction_id is given the new invoice is applied to it.
func (h *InvoicesHandler) Supplier(c *gin.Context) {
	var req dto.SupplierInvoiceRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	if req.Invoice == nil {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("invoice is required"))
		return
	}

	var (
		result *reconcile.SupplierInvoiceResult
		err    error
	)
	if req.TransactionID > 0 {
		result, err = h.reconciler.CreateSupplierInvoiceAndApply(c.Request.Context(), req.Invoice, req.PartyID, reconcile.ApplyRequest{
			TransactionID: req.TransactionID,
			CreatePayment: dto.Bool(req.CreatePayment, true),
			AccountID:     req.AccountID,
			PaymentModeID: req.PaymentModeID,
			ReconciledBy:  "manual",
		})
	} else {
		result, err = h.reconciler.CreateSupplierInvoice(c.Request.Context(), req.Invoice, req.PartyID)
	}
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	h.logger.Info("supplier invoice created",
		"invoice_id", result.InvoiceID,
		"party_id", result.PartyID,
		"party_created", result.PartyCreated,
		"transaction_id", req.TransactionID,
		"reconciled", result.Reconciled != nil)
	h.WriteJSON(c, http.StatusCreated, result)
}
