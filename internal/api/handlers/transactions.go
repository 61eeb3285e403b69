package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/adapters/ingest"
	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// TransactionsHandler handles imported transaction requests.
type TransactionsHandler struct {
	*Base
	reconciler Reconciler
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo storage.Repository, reconciler Reconciler, logger *slog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		Base:       NewBase(repo, logger),
		reconciler: reconciler,
	}
}

// Import handles POST /api/transactions/import with a multipart "file".
func (h *TransactionsHandler) Import(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.WriteServiceError(c, err, "file")
		return
	}
	defer f.Close()

	filename := filepath.Base(fh.Filename)
	st, err := ingest.ParseStatement(filename, f)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFormat) || errors.Is(err, ingest.ErrNoHeader) {
			h.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
			return
		}
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("could not read statement: "+err.Error()))
		return
	}

	result, err := h.reconciler.Import(filename, st.Rows)
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}

	response := dto.ImportResponse{
		BatchID:    result.BatchID,
		Filename:   filename,
		Format:     st.Format,
		Rows:       len(st.Rows),
		Skipped:    st.Skipped,
		Imported:   make([]dto.TransactionResponse, 0, len(result.Imported)),
		Duplicates: make([]dto.DuplicateResponse, 0, len(result.Duplicates)),
		Errors:     result.Errors,
	}
	for _, t := range result.Imported {
		response.Imported = append(response.Imported, dto.NewTransactionResponse(t))
	}
	for _, d := range result.Duplicates {
		response.Duplicates = append(response.Duplicates, dto.NewDuplicateResponse(d))
	}

	h.logger.Info("statement imported",
		"file", filename,
		"format", st.Format,
		"imported", len(result.Imported),
		"duplicates", len(result.Duplicates))
	h.WriteJSON(c, http.StatusOK, response)
}

// List handles GET /api/transactions
func (h *TransactionsHandler) List(c *gin.Context) {
	status := storage.TransactionStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("status must be pending, applying, reconciled or ignored"))
		return
	}
	limit := ParseIntParam(c, "limit", 0)

	txs, err := h.repo.ListTransactions(storage.TransactionFilter{Status: status, Limit: limit})
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}

	response := dto.TransactionListResponse{
		Transactions: make([]dto.TransactionResponse, 0, len(txs)),
		Count:        len(txs),
		Status:       string(status),
		Limit:        limit,
	}
	for _, t := range txs {
		response.Transactions = append(response.Transactions, dto.NewTransactionResponse(t))
	}
	h.WriteJSON(c, http.StatusOK, response)
}

// Stats handles GET /api/transactions/stats
func (h *TransactionsHandler) Stats(c *gin.Context) {
	stats, err := h.repo.TransactionStats()
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NewStatsResponse(stats))
}

// Get handles GET /api/transactions/:id
func (h *TransactionsHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	tx, err := h.repo.GetTransaction(id)
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NewTransactionResponse(tx))
}

// Matches handles GET /api/transactions/:id/matches. Candidates are
// computed on request, never stored. Only pending transactions are looked
// up; any other status answers empty lists without calling the ERP.
func (h *TransactionsHandler) Matches(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	tx, err := h.repo.GetTransaction(id)
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	if tx.Status != storage.StatusPending {
		h.WriteJSON(c, http.StatusOK, dto.NewMatchesResponse(dto.NewTransactionResponse(tx), &reconcile.Suggestion{}))
		return
	}

	suggestion, err := h.reconciler.Suggest(c.Request.Context(), reconcile.ToTransaction(tx))
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NewMatchesResponse(dto.NewTransactionResponse(tx), suggestion))
}

// Reconcile handles POST /api/transactions/:id/reconcile
func (h *TransactionsHandler) Reconcile(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	var req dto.ReconcileRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	if req.InvoiceID <= 0 || req.InvoiceType == "" {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("invoice_id and invoice_type are required"))
		return
	}

	result, err := h.reconciler.Apply(c.Request.Context(), applyRequest(id, req))
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NewReconcileResponse(result))
}

// BankLine handles POST /api/transactions/:id/bank-line: the transaction is
// booked as a new entry on an ERP bank account and reconciled against it.
func (h *TransactionsHandler) BankLine(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	var req dto.BankLineRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	result, err := h.reconciler.CreateBankLine(c.Request.Context(), reconcile.BankLineRequest{
		TransactionID: id,
		AccountID:     req.AccountID,
		Type:          req.Type,
		Label:         req.Label,
		ReconciledBy:  "manual",
	})
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	h.WriteJSON(c, http.StatusCreated, dto.NewReconcileResponse(result))
}

// Ignore handles POST /api/transactions/:id/ignore
func (h *TransactionsHandler) Ignore(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	var req dto.IgnoreRequest
	if !h.bindJSON(c, &req, true) {
		return
	}
	if err := h.repo.MarkIgnored(id, req.Reason); err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	h.Get(c)
}

// Reset handles POST /api/transactions/:id/reset
func (h *TransactionsHandler) Reset(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.repo.ResetTransaction(id); err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	h.Get(c)
}

// Actions handles GET /api/transactions/:id/actions, the audit trail of
// one transaction.
func (h *TransactionsHandler) Actions(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	actions, err := h.repo.ListActions("transaction", id, ParseIntParam(c, "limit", 50))
	if err != nil {
		h.WriteServiceError(c, err, "transaction")
		return
	}
	if actions == nil {
		actions = []storage.UserAction{}
	}
	h.WriteJSON(c, http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func applyRequest(txID int64, req dto.ReconcileRequest) reconcile.ApplyRequest {
	return reconcile.ApplyRequest{
		TransactionID: txID,
		InvoiceID:     req.InvoiceID,
		InvoiceType:   req.InvoiceType,
		CreatePayment: dto.Bool(req.CreatePayment, true),
		AccountID:     req.AccountID,
		PaymentModeID: req.PaymentModeID,
		ReconciledBy:  "manual",
	}
}
