package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the reconciliation state of an imported transaction.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusReconciled TransactionStatus = "reconciled"
	StatusIgnored    TransactionStatus = "ignored"

	// StatusApplying marks a transaction claimed by an apply in progress:
	// its ERP payment may be in flight.
	StatusApplying TransactionStatus = "applying"
)

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApplying, StatusReconciled, StatusIgnored:
		return true
	}
	return false
}

// ImportedTransaction is a bank statement line persisted for reconciliation
type ImportedTransaction struct {
	ID         int64             `json:"id"`
	Hash       string            `json:"hash"`
	Date       time.Time         `json:"date"`
	Label      string            `json:"label"`
	Amount     decimal.Decimal   `json:"amount"`
	RawData    string            `json:"raw_data,omitempty"`
	ImportedAt time.Time         `json:"import_date"`
	ImportFile string            `json:"import_file"`
	Status     TransactionStatus `json:"status"`

	// Set once reconciled
	MatchedInvoiceID   *int64     `json:"matched_invoice_id,omitempty"`
	MatchedInvoiceType string     `json:"matched_invoice_type,omitempty"`
	MatchedInvoiceRef  string     `json:"matched_invoice_ref,omitempty"`
	MatchedParty       string     `json:"matched_thirdparty,omitempty"`
	PaymentID          *int64     `json:"payment_id,omitempty"`
	ReconciledAt       *time.Time `json:"reconciled_at,omitempty"`
	ReconciledBy       string     `json:"reconciled_by,omitempty"`

	IgnoreReason string `json:"ignore_reason,omitempty"`
}

// NewTransaction is one parsed statement row to import.
type NewTransaction struct {
	Date    time.Time
	Label   string
	Amount  decimal.Decimal
	RawData string
}

// Duplicate describes a row that was already stored.
type Duplicate struct {
	Row            NewTransaction    `json:"transaction"`
	ExistingID     int64             `json:"existing_id"`
	ExistingStatus TransactionStatus `json:"existing_status"`
}

// ImportResult summarizes an import run
type ImportResult struct {
	BatchID    string                 `json:"batch_id"`
	Imported   []*ImportedTransaction `json:"imported"`
	Duplicates []Duplicate            `json:"duplicates"`
	Errors     []string               `json:"errors,omitempty"`
}

// Reconciliation holds what a transaction was matched to.
type Reconciliation struct {
	InvoiceID    int64
	InvoiceType  string // customer, supplier or bank_line
	InvoiceRef   string
	PartyName    string
	PaymentID    *int64
	ReconciledBy string
}

// StatusTotals is the count and signed sum of transactions in one status.
type StatusTotals struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// TransactionStats aggregates imported transactions
type TransactionStats struct {
	ByStatus      map[TransactionStatus]StatusTotals `json:"by_status"`
	TotalCount    int                                `json:"total_count"`
	TotalAmount   decimal.Decimal                    `json:"total_amount"`
	PendingCredit decimal.Decimal                    `json:"pending_credits"`
	PendingDebit  decimal.Decimal                    `json:"pending_debits"`
	CreditCount   int                                `json:"pending_credit_count"`
	DebitCount    int                                `json:"pending_debit_count"`
}

// PaymentStatus is the lifecycle state of a recorded payment.
type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "created"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentRecord is a payment created in the ERP by this application
type PaymentRecord struct {
	ID               int64           `json:"id"`
	PaymentID        int64           `json:"payment_id"`
	InvoiceID        int64           `json:"invoice_id"`
	InvoiceType      string          `json:"invoice_type"`
	InvoiceRef       string          `json:"invoice_ref"`
	PartyName        string          `json:"thirdparty_name"`
	Amount           decimal.Decimal `json:"amount"`
	PaidAt           time.Time       `json:"date_payment"`
	AccountID        int64           `json:"account_id,omitempty"`
	AccountLabel     string          `json:"account_label,omitempty"`
	TransactionID    *int64          `json:"transaction_id,omitempty"`
	TransactionLabel string          `json:"transaction_label,omitempty"`
	Comment          string          `json:"comment,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Status           PaymentStatus   `json:"status"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
}

// PaymentFilter narrows ListPayments
type PaymentFilter struct {
	From      *time.Time    // Payment date lower bound (inclusive)
	To        *time.Time    // Payment date upper bound (inclusive)
	InvoiceID int64         // 0 = any
	Status    PaymentStatus // empty = any
	Limit     int           // 0 = default 100
	Offset    int
}

// PaymentStats aggregates payment history
type PaymentStats struct {
	TotalCreated   int             `json:"total_created"`
	TotalCancelled int             `json:"total_cancelled"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TodayCount     int             `json:"today_count"`
}

// BankLineRecord is a bank line created in the ERP by this application
type BankLineRecord struct {
	ID           int64           `json:"id"`
	LineID       int64           `json:"line_id"`
	AccountID    int64           `json:"account_id"`
	AccountLabel string          `json:"account_label,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date_line"`
	Label        string          `json:"label"`
	Type         string          `json:"type"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       PaymentStatus   `json:"status"`
}

// UserAction is an audit log entry
type UserAction struct {
	ID         int64          `json:"id"`
	ActionType string         `json:"action_type"`
	EntityType string         `json:"entity_type"`
	EntityID   *int64         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UserName   string         `json:"user_name"`
}

// Audit action types
const (
	ActionImport                = "transactions_imported"
	ActionTransactionReconciled = "transaction_reconciled"
	ActionTransactionIgnored    = "transaction_ignored"
	ActionTransactionReset      = "transaction_reset"
	ActionPaymentCreated        = "payment_created"
	ActionPaymentCancelled      = "payment_cancelled"
	ActionBankLineCreated       = "bank_line_created"
)
