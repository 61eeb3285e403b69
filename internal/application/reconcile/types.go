package reconcile

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

var (
	// ErrNoBankAccount is returned when a payment must be created but no
	// bank account is configured or given.
	ErrNoBankAccount = errors.New("no bank account configured for payments")

	// ErrInvalidKind is returned for an unknown invoice type.
	ErrInvalidKind = errors.New("invalid invoice type")
)

// TargetBankLine is the invoice type recorded when a transaction is matched
// to an existing ERP bank line instead of an invoice.
const TargetBankLine = string(matcher.TargetBankLine)

// ERP is the subset of the Dolibarr client the orchestrator relies on.
type ERP interface {
	FindInvoiceByReference(ctx context.Context, ref string) (*matcher.Invoice, error)
	SearchParties(ctx context.Context, name string) ([]dolibarr.Party, error)
	GetParty(ctx context.Context, id int64) (*dolibarr.Party, error)
	CreateParty(ctx context.Context, req dolibarr.PartyRequest) (int64, error)
	ListPartyInvoices(ctx context.Context, partyID int64, kind matcher.InvoiceKind, includePaid bool) ([]matcher.Invoice, error)
	GetInvoice(ctx context.Context, kind matcher.InvoiceKind, id int64) (*matcher.Invoice, error)
	ListBankLines(ctx context.Context, accountID int64) ([]matcher.BankLine, error)
	AddPayment(ctx context.Context, kind matcher.InvoiceKind, invoiceID int64, req dolibarr.PaymentRequest) (int64, error)
	CreateSupplierInvoice(ctx context.Context, req dolibarr.SupplierInvoiceRequest) (int64, error)
	AddBankLine(ctx context.Context, accountID int64, req dolibarr.BankLineRequest) (int64, error)
	ListInvoices(ctx context.Context, kind matcher.InvoiceKind, status string, limit int) ([]matcher.Invoice, error)
}

var _ ERP = (*dolibarr.Client)(nil)

// Settings are the ERP defaults used when applying matches.
type Settings struct {
	BankAccountID int64
	PaymentModeID int64 // Default: 2 (bank transfer)
}

// Source tells which search tier produced the invoice candidates.
type Source string

const (
	SourceNone      Source = ""
	SourceReference Source = "reference"
	SourceParty     Source = "party"
)

// Suggestion is the full lookup for one transaction: every kept candidate,
// the party the label resolved to and the overall best match.
type Suggestion struct {
	TransactionID int64                    `json:"transaction_id"`
	Counterparty  string                   `json:"counterparty,omitempty"`
	InvoiceRef    string                   `json:"invoice_ref,omitempty"`
	Source        Source                   `json:"source,omitempty"`
	Party         *dolibarr.Party          `json:"party,omitempty"`
	Invoices      []matcher.MatchCandidate `json:"invoices"`
	BankLines     []matcher.MatchCandidate `json:"bank_lines"`
	Best          *matcher.MatchCandidate  `json:"best,omitempty"`
}

// ApplyRequest reconciles one stored transaction.
type ApplyRequest struct {
	TransactionID int64  `json:"transaction_id"`
	InvoiceID     int64  `json:"invoice_id"`
	InvoiceType   string `json:"invoice_type"` // customer, supplier or bank_line
	CreatePayment bool   `json:"create_payment"`
	AccountID     int64  `json:"account_id,omitempty"`
	PaymentModeID int64  `json:"payment_mode_id,omitempty"`
	ReconciledBy  string `json:"reconciled_by,omitempty"`
}

// ApplyResult describes what Apply did.
type ApplyResult struct {
	TransactionID  int64           `json:"transaction_id"`
	InvoiceID      int64           `json:"invoice_id"`
	InvoiceType    string          `json:"invoice_type"`
	InvoiceRef     string          `json:"invoice_ref,omitempty"`
	PartyName      string          `json:"thirdparty_name,omitempty"`
	PaymentID      *int64          `json:"payment_id,omitempty"`
	BankLineID     *int64          `json:"bank_line_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	AlreadyPaid    bool            `json:"already_paid"`
	PaymentSkipped bool            `json:"payment_skipped"`
}

// erpWritten reports whether the ERP already holds a record created for the
// transaction.
func (r *ApplyResult) erpWritten() bool {
	return r != nil && (r.PaymentID != nil || r.BankLineID != nil)
}

// BankLineRequest books a transaction as a new entry on an ERP bank account.
type BankLineRequest struct {
	TransactionID int64  `json:"transaction_id"`
	AccountID     int64  `json:"account_id,omitempty"` // Default: configured account
	Type          string `json:"type,omitempty"`       // Default: VIR
	Label         string `json:"label,omitempty"`      // Default: transaction label
	ReconciledBy  string `json:"reconciled_by,omitempty"`
}

// StatementMatch is the stateless lookup of one transaction against the
// unpaid invoice pools.
type StatementMatch struct {
	Transaction matcher.Transaction      `json:"transaction"`
	Invoices    []matcher.MatchCandidate `json:"invoices"`
	BankLines   []matcher.MatchCandidate `json:"bank_lines"`
	Best        *matcher.MatchCandidate  `json:"best,omitempty"`
}

// BatchItem is the outcome of one ApplyBatch entry.
type BatchItem struct {
	Request ApplyRequest `json:"request"`
	Result  *ApplyResult `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// BatchResult summarizes ApplyBatch
type BatchResult struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"success_count"`
	Failed    int         `json:"error_count"`
}

// Options controls an AutoReconcile run
type Options struct {
	Apply         bool // Dry-run when false
	CreatePayment bool // Create ERP payments for applied invoice matches
	Limit         int  // Pending transactions to consider, 0 = storage default
	ReconciledBy  string
}

// Progress is reported after each transaction of an AutoReconcile run.
type Progress struct {
	Done    int
	Total   int
	Matched int
	Applied int
	Errors  int
}

// ProgressFunc receives AutoReconcile progress.
type ProgressFunc func(Progress)

// Outcome is the per-transaction record of an AutoReconcile run.
type Outcome struct {
	TransactionID int64                   `json:"transaction_id"`
	Label         string                  `json:"label"`
	Amount        decimal.Decimal         `json:"amount"`
	Best          *matcher.MatchCandidate `json:"best,omitempty"`
	Applied       bool                    `json:"applied"`
	Error         string                  `json:"error,omitempty"`
}

// Result holds AutoReconcile results
type Result struct {
	Processed int       `json:"processed"`
	Matched   int       `json:"matched"`
	Applied   int       `json:"applied"`
	Skipped   int       `json:"skipped"`
	Errors    int       `json:"errors"`
	Outcomes  []Outcome `json:"outcomes"`
	DryRun    bool      `json:"dry_run"`
}
