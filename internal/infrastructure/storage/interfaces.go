package storage

// Repository defines the complete storage interface.
// This interface allows swapping implementations and makes testing with
// mocks straightforward.
type Repository interface {
	TransactionRepository
	HistoryRepository
	ActionRepository
	Close() error
}

// TransactionRepository handles imported bank transactions
type TransactionRepository interface {
	// ImportTransactions stores new rows and reports the ones already present
	ImportTransactions(importFile string, rows []NewTransaction) (*ImportResult, error)

	// GetTransaction retrieves a transaction by ID, or ErrNotFound
	GetTransaction(id int64) (*ImportedTransaction, error)

	// ListPending returns pending transactions, oldest first
	ListPending(limit int) ([]*ImportedTransaction, error)

	// ListTransactions returns transactions matching the filter, oldest first
	ListTransactions(filter TransactionFilter) ([]*ImportedTransaction, error)

	// ClaimTransaction atomically moves a pending transaction to applying.
	// Only one of several concurrent claims succeeds.
	ClaimTransaction(id int64) (*ImportedTransaction, error)

	// ReleaseTransaction returns a claimed transaction to pending
	ReleaseTransaction(id int64) error

	// MarkReconciled records the match of a pending or claimed transaction
	MarkReconciled(id int64, r Reconciliation) error

	// MarkIgnored excludes a pending transaction from reconciliation
	MarkIgnored(id int64, reason string) error

	// ResetTransaction returns a transaction to pending and clears its match
	ResetTransaction(id int64) error

	// TransactionStats returns per-status aggregates
	TransactionStats() (*TransactionStats, error)
}

// TransactionFilter narrows ListTransactions
type TransactionFilter struct {
	Status TransactionStatus // empty = all
	Limit  int               // 0 = default 2000
}

// HistoryRepository tracks objects created in the ERP
type HistoryRepository interface {
	// AddPayment records a created payment and returns the history ID
	AddPayment(p *PaymentRecord) (int64, error)

	// ListPayments returns payments, most recent first
	ListPayments(filter PaymentFilter) ([]*PaymentRecord, error)

	// CancelPayment flags a payment history record as cancelled
	CancelPayment(id int64, reason string) error

	// PaymentStatistics returns payment aggregates
	PaymentStatistics() (*PaymentStats, error)

	// AddBankLine records a created bank line and returns the history ID
	AddBankLine(b *BankLineRecord) (int64, error)
}

// ActionRepository is the audit log
type ActionRepository interface {
	LogAction(a UserAction) error
	ListActions(entityType string, entityID int64, limit int) ([]UserAction, error)
}
