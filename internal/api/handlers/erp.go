package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

const (
	defaultInvoiceLimit = 100
	maxInvoiceLimit     = 500
)

// ERPHandler exposes read-only ERP listings.
type ERPHandler struct {
	*Base
	erp ERPBrowser
}

// NewERPHandler creates a new ERP handler.
func NewERPHandler(erp ERPBrowser, logger *slog.Logger) *ERPHandler {
	return &ERPHandler{Base: NewBase(nil, logger), erp: erp}
}

// Invoices handles GET /api/erp/invoices?type=customer|supplier&status=unpaid|paid|all
func (h *ERPHandler) Invoices(c *gin.Context) {
	kind := matcher.InvoiceKind(c.DefaultQuery("type", string(matcher.KindCustomer)))
	if !kind.Valid() {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("type must be customer or supplier"))
		return
	}

	status := c.DefaultQuery("status", dolibarr.StatusUnpaid)
	switch status {
	case dolibarr.StatusUnpaid, dolibarr.StatusPaid:
	case "all":
		status = dolibarr.StatusAll
	default:
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("status must be unpaid, paid or all"))
		return
	}

	limit := ParseIntParam(c, "limit", defaultInvoiceLimit)
	if limit <= 0 || limit > maxInvoiceLimit {
		limit = defaultInvoiceLimit
	}

	invoices, err := h.erp.ListInvoices(c.Request.Context(), kind, status, limit)
	if err != nil {
		h.WriteServiceError(c, err, "invoice")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NewInvoiceListResponse(string(kind), c.DefaultQuery("status", dolibarr.StatusUnpaid), invoices))
}

// Accounts handles GET /api/erp/accounts
func (h *ERPHandler) Accounts(c *gin.Context) {
	accounts, err := h.erp.ListBankAccounts(c.Request.Context())
	if err != nil {
		h.WriteServiceError(c, err, "bank account")
		return
	}
	if accounts == nil {
		accounts = []dolibarr.BankAccount{}
	}
	h.WriteJSON(c, http.StatusOK, dto.BankAccountListResponse{Accounts: accounts, Count: len(accounts)})
}
