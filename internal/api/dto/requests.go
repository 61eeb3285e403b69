package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/adapters/extractor"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

// ReconcileRequest applies a match to one transaction.
type ReconcileRequest struct {
	InvoiceID     int64  `json:"invoice_id"`
	InvoiceType   string `json:"invoice_type"`
	CreatePayment *bool  `json:"create_payment"` // Default: true
	AccountID     int64  `json:"account_id"`
	PaymentModeID int64  `json:"payment_mode_id"`
}

// BatchReconcileItem is one entry of a batch reconcile.
type BatchReconcileItem struct {
	TransactionID int64 `json:"transaction_id"`
	ReconcileRequest
}

// BatchReconcileRequest applies several matches at once.
type BatchReconcileRequest struct {
	Items []BatchReconcileItem `json:"items"`
}

// IgnoreRequest excludes a transaction from reconciliation.
type IgnoreRequest struct {
	Reason string `json:"reason"`
}

// StartJobRequest starts an auto-reconcile job.
type StartJobRequest struct {
	Apply         bool  `json:"apply"`
	CreatePayment *bool `json:"create_payment"` // Default: same as apply
	Limit         int   `json:"limit"`
}

// CancelPaymentRequest flags a payment history record as cancelled.
type CancelPaymentRequest struct {
	Reason string `json:"reason"`
}

// SupplierInvoiceRequest creates a supplier invoice from reviewed data. With
// a transaction id the transaction is reconciled against the new invoice.
type SupplierInvoiceRequest struct {
	Invoice       *extractor.InvoiceData `json:"invoice"`
	PartyID       int64                  `json:"thirdparty_id"`
	TransactionID int64                  `json:"transaction_id"`
	CreatePayment *bool                  `json:"create_payment"` // Default: true
	AccountID     int64                  `json:"account_id"`
	PaymentModeID int64                  `json:"payment_mode_id"`
}

// BankLineRequest books a transaction as a new ERP bank line.
type BankLineRequest struct {
	AccountID int64  `json:"account_id"`
	Type      string `json:"type"` // Default: VIR
	Label     string `json:"label"`
}

// StatementTransaction is one statement row sent for matching without being
// imported.
type StatementTransaction struct {
	ID     int64           `json:"id"`
	Date   string          `json:"date"` // YYYY-MM-DD
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// MatchStatementRequest scores statement rows against the ERP.
type MatchStatementRequest struct {
	Transactions []StatementTransaction `json:"transactions"`
	AccountID    int64                  `json:"account_id"`
}

// ToTransactions converts the rows for the matcher. Rows without an id are
// numbered from 1 in request order.
func (r MatchStatementRequest) ToTransactions() ([]matcher.Transaction, error) {
	out := make([]matcher.Transaction, 0, len(r.Transactions))
	for i, t := range r.Transactions {
		date, err := time.Parse(dateLayout, strings.TrimSpace(t.Date))
		if err != nil {
			return nil, fmt.Errorf("transaction %d: invalid date %q", i+1, t.Date)
		}
		id := t.ID
		if id == 0 {
			id = int64(i + 1)
		}
		out = append(out, matcher.Transaction{ID: id, Date: date, Amount: t.Amount, Label: t.Label})
	}
	return out, nil
}

// Bool returns the value of p, or def when p is nil.
func Bool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
