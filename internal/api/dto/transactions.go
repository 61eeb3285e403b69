package dto

import (
	"time"

	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

const dateLayout = "2006-01-02"

// TransactionResponse represents an imported bank transaction.
type TransactionResponse struct {
	ID                 int64  `json:"id"`
	Date               string `json:"date"`
	Label              string `json:"label"`
	Amount             string `json:"amount"`
	Status             string `json:"status"`
	ImportFile         string `json:"import_file,omitempty"`
	ImportedAt         string `json:"import_date"`
	MatchedInvoiceID   *int64 `json:"matched_invoice_id,omitempty"`
	MatchedInvoiceType string `json:"matched_invoice_type,omitempty"`
	MatchedInvoiceRef  string `json:"matched_invoice_ref,omitempty"`
	MatchedParty       string `json:"matched_thirdparty,omitempty"`
	PaymentID          *int64 `json:"payment_id,omitempty"`
	ReconciledAt       string `json:"reconciled_at,omitempty"`
	ReconciledBy       string `json:"reconciled_by,omitempty"`
	IgnoreReason       string `json:"ignore_reason,omitempty"`
	RawData            string `json:"raw_data,omitempty"`
}

// NewTransactionResponse converts a stored transaction.
func NewTransactionResponse(t *storage.ImportedTransaction) TransactionResponse {
	r := TransactionResponse{
		ID:                 t.ID,
		Date:               t.Date.Format(dateLayout),
		Label:              t.Label,
		Amount:             t.Amount.StringFixed(2),
		Status:             string(t.Status),
		ImportFile:         t.ImportFile,
		ImportedAt:         t.ImportedAt.UTC().Format(time.RFC3339),
		MatchedInvoiceID:   t.MatchedInvoiceID,
		MatchedInvoiceType: t.MatchedInvoiceType,
		MatchedInvoiceRef:  t.MatchedInvoiceRef,
		MatchedParty:       t.MatchedParty,
		PaymentID:          t.PaymentID,
		ReconciledBy:       t.ReconciledBy,
		IgnoreReason:       t.IgnoreReason,
		RawData:            t.RawData,
	}
	if t.ReconciledAt != nil {
		r.ReconciledAt = t.ReconciledAt.UTC().Format(time.RFC3339)
	}
	return r
}

// TransactionListResponse is returned when listing transactions.
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Count        int                   `json:"count"`
	Status       string                `json:"status,omitempty"`
	Limit        int                   `json:"limit"`
}

// ImportResponse summarizes a statement import.
type ImportResponse struct {
	BatchID    string                `json:"batch_id"`
	Filename   string                `json:"filename"`
	Format     string                `json:"format"`
	Rows       int                   `json:"rows"`
	Skipped    int                   `json:"skipped_rows"`
	Imported   []TransactionResponse `json:"imported"`
	Duplicates []DuplicateResponse   `json:"duplicates"`
	Errors     []string              `json:"errors,omitempty"`
}

// DuplicateResponse is a row that was already imported.
type DuplicateResponse struct {
	Date           string `json:"date"`
	Label          string `json:"label"`
	Amount         string `json:"amount"`
	ExistingID     int64  `json:"existing_id"`
	ExistingStatus string `json:"existing_status"`
}

// NewDuplicateResponse converts a duplicate import row.
func NewDuplicateResponse(d storage.Duplicate) DuplicateResponse {
	return DuplicateResponse{
		Date:           d.Row.Date.Format(dateLayout),
		Label:          d.Row.Label,
		Amount:         d.Row.Amount.StringFixed(2),
		ExistingID:     d.ExistingID,
		ExistingStatus: string(d.ExistingStatus),
	}
}

// PaymentResponse represents a payment created in the ERP.
type PaymentResponse struct {
	ID               int64  `json:"id"`
	PaymentID        int64  `json:"payment_id"`
	InvoiceID        int64  `json:"invoice_id"`
	InvoiceType      string `json:"invoice_type"`
	InvoiceRef       string `json:"invoice_ref"`
	PartyName        string `json:"thirdparty_name,omitempty"`
	Amount           string `json:"amount"`
	PaidAt           string `json:"date_payment"`
	AccountID        int64  `json:"account_id,omitempty"`
	TransactionID    *int64 `json:"transaction_id,omitempty"`
	TransactionLabel string `json:"transaction_label,omitempty"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
	CancelReason     string `json:"cancel_reason,omitempty"`
}

// NewPaymentResponse converts a payment history record.
func NewPaymentResponse(p *storage.PaymentRecord) PaymentResponse {
	r := PaymentResponse{
		ID:               p.ID,
		PaymentID:        p.PaymentID,
		InvoiceID:        p.InvoiceID,
		InvoiceType:      p.InvoiceType,
		InvoiceRef:       p.InvoiceRef,
		PartyName:        p.PartyName,
		Amount:           p.Amount.StringFixed(2),
		PaidAt:           p.PaidAt.Format(dateLayout),
		AccountID:        p.AccountID,
		TransactionID:    p.TransactionID,
		TransactionLabel: p.TransactionLabel,
		Status:           string(p.Status),
		CreatedAt:        p.CreatedAt.UTC().Format(time.RFC3339),
		CancelReason:     p.CancelReason,
	}
	if p.CancelledAt != nil {
		r.CancelledAt = p.CancelledAt.UTC().Format(time.RFC3339)
	}
	return r
}

// PaymentListResponse is returned when listing payment history.
type PaymentListResponse struct {
	Payments []PaymentResponse `json:"payments"`
	Count    int               `json:"count"`
}

// NewStatsResponse converts transaction statistics.
func NewStatsResponse(s *storage.TransactionStats) StatsResponse {
	r := StatsResponse{
		ByStatus:      make(map[string]StatusTotalsResponse, len(s.ByStatus)),
		TotalCount:    s.TotalCount,
		TotalAmount:   s.TotalAmount.StringFixed(2),
		PendingCredit: s.PendingCredit.StringFixed(2),
		PendingDebit:  s.PendingDebit.StringFixed(2),
		CreditCount:   s.CreditCount,
		DebitCount:    s.DebitCount,
	}
	for status, t := range s.ByStatus {
		r.ByStatus[string(status)] = StatusTotalsResponse{Count: t.Count, Total: t.Total.StringFixed(2)}
	}
	return r
}

// NewPaymentStatsResponse converts payment statistics.
func NewPaymentStatsResponse(s *storage.PaymentStats) PaymentStatsResponse {
	return PaymentStatsResponse{
		TotalCreated:   s.TotalCreated,
		TotalCancelled: s.TotalCancelled,
		TotalAmount:    s.TotalAmount.StringFixed(2),
		TodayCount:     s.TodayCount,
	}
}
