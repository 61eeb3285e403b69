package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/adapters/extractor"
	"github.com/eshaffer321/bankrecon/internal/adapters/ingest"
	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/application/service"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// Reconciler is the part of the orchestrator the handlers use.
type Reconciler interface {
	Suggest(ctx context.Context, tx matcher.Transaction) (*reconcile.Suggestion, error)
	Apply(ctx context.Context, req reconcile.ApplyRequest) (*reconcile.ApplyResult, error)
	ApplyBatch(ctx context.Context, reqs []reconcile.ApplyRequest) *reconcile.BatchResult
	Import(filename string, rows []ingest.Row) (*storage.ImportResult, error)
	CreateSupplierInvoice(ctx context.Context, inv *extractor.InvoiceData, partyID int64) (*reconcile.SupplierInvoiceResult, error)
	CreateSupplierInvoiceAndApply(ctx context.Context, inv *extractor.InvoiceData, partyID int64, req reconcile.ApplyRequest) (*reconcile.SupplierInvoiceResult, error)
	CreateBankLine(ctx context.Context, req reconcile.BankLineRequest) (*reconcile.ApplyResult, error)
	MatchStatement(ctx context.Context, txs []matcher.Transaction, accountID int64) ([]reconcile.StatementMatch, error)
}

// JobService manages auto-reconcile jobs.
type JobService interface {
	StartJob(ctx context.Context, req service.JobRequest) (string, error)
	GetJob(jobID string) (*service.Job, error)
	ListJobs() []*service.Job
	ActiveJob() string
	CancelJob(jobID string) error
}

// PartySearcher looks up ERP third parties by name.
type PartySearcher interface {
	SearchParties(ctx context.Context, name string) ([]dolibarr.Party, error)
}

// ERPBrowser lists what the ERP holds, for pickers in the review screens.
type ERPBrowser interface {
	ListInvoices(ctx context.Context, kind matcher.InvoiceKind, status string, limit int) ([]matcher.Invoice, error)
	ListBankAccounts(ctx context.Context) ([]dolibarr.BankAccount, error)
}

// Pinger checks that the ERP answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ Reconciler    = (*reconcile.Orchestrator)(nil)
	_ JobService    = (*service.ReconcileService)(nil)
	_ PartySearcher = (*dolibarr.Client)(nil)
	_ ERPBrowser    = (*dolibarr.Client)(nil)
	_ Pinger        = (*dolibarr.Client)(nil)
)

// Base provides shared functionality for all handlers.
type Base struct {
	repo   storage.Repository
	logger *slog.Logger
}

// NewBase creates a new base handler with the given repository.
func NewBase(repo storage.Repository, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{repo: repo, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(c *gin.Context, status int, err dto.APIError) {
	c.AbortWithStatusJSON(status, err)
}

// WriteServiceError maps an application error to a status code. resource
// names what was looked up for 404 answers.
func (b *Base) WriteServiceError(c *gin.Context, err error, resource string) {
	var apiErr *dolibarr.APIError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.WriteError(c, http.StatusNotFound, dto.NotFoundError(resource))
	case errors.Is(err, service.ErrJobNotFound):
		b.WriteError(c, http.StatusNotFound, dto.NotFoundError("job"))
	case errors.Is(err, dolibarr.ErrNotFound):
		b.WriteError(c, http.StatusNotFound, dto.NotFoundError("ERP object"))
	case errors.Is(err, storage.ErrInvalidTransition),
		errors.Is(err, service.ErrJobRunning),
		errors.Is(err, service.ErrJobFinished):
		b.WriteError(c, http.StatusConflict, dto.ConflictError(err.Error()))
	case errors.Is(err, reconcile.ErrInvalidKind),
		errors.Is(err, reconcile.ErrNoBankAccount),
		errors.Is(err, reconcile.ErrNoSupplier):
		b.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
	case errors.Is(err, dolibarr.ErrUnauthorized), errors.As(err, &apiErr):
		b.logger.Error("ERP request failed", "path", c.FullPath(), "error", err)
		b.WriteError(c, http.StatusBadGateway, dto.UpstreamError(err.Error()))
	default:
		b.logger.Error("request failed", "path", c.FullPath(), "error", err)
		b.WriteError(c, http.StatusInternalServerError, dto.InternalError())
	}
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(c *gin.Context, name string, defaultVal int) int {
	val := c.Query(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// parseID reads the :id path parameter and answers 400 when it is not a
// positive integer.
func (b *Base) parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		b.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid id"))
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body. An empty body leaves v untouched when
// optional is set.
func (b *Base) bindJSON(c *gin.Context, v any, optional bool) bool {
	if optional && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		b.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid request body: "+err.Error()))
		return false
	}
	return true
}
