package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu           sync.Mutex
	transactions map[int64]*ImportedTransaction
	byHash       map[string]int64
	payments     map[int64]*PaymentRecord
	bankLines    []BankLineRecord
	actions      []UserAction
	nextTxID     int64
	nextPayID    int64
	nextLineID   int64

	// Hooks for test assertions
	ImportCalled         bool
	MarkReconciledCalled bool
	LastReconciliation   *Reconciliation
	AddPaymentCalled     bool
	LastPayment          *PaymentRecord
	AddBankLineCalled    bool

	// Error injection for testing error paths
	ImportErr         error
	GetTransactionErr error
	ListErr           error
	StatsErr          error
	MarkReconciledErr error
	MarkIgnoredErr    error
	AddPaymentErr     error
	AddBankLineErr    error
	LogActionErr      error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		transactions: make(map[int64]*ImportedTransaction),
		byHash:       make(map[string]int64),
		payments:     make(map[int64]*PaymentRecord),
		nextTxID:     1,
		nextPayID:    1,
		nextLineID:   1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// ImportTransactions stores rows in memory with the same hash dedup as Storage
func (m *MockRepository) ImportTransactions(importFile string, rows []NewTransaction) (*ImportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ImportCalled = true
	if m.ImportErr != nil {
		return nil, m.ImportErr
	}

	result := &ImportResult{BatchID: uuid.NewString(), Imported: []*ImportedTransaction{}, Duplicates: []Duplicate{}}
	for i, row := range rows {
		if row.Date.IsZero() {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: missing date", i+1))
			continue
		}
		date := utcDay(row.Date)
		hash := TransactionHash(date, row.Label, row.Amount)
		if id, ok := m.byHash[hash]; ok {
			result.Duplicates = append(result.Duplicates, Duplicate{
				Row:            row,
				ExistingID:     id,
				ExistingStatus: m.transactions[id].Status,
			})
			continue
		}

		t := &ImportedTransaction{
			ID:         m.nextTxID,
			Hash:       hash,
			Date:       date,
			Label:      row.Label,
			Amount:     row.Amount,
			RawData:    row.RawData,
			ImportedAt: time.Now().UTC(),
			ImportFile: importFile,
			Status:     StatusPending,
		}
		m.nextTxID++
		m.transactions[t.ID] = t
		m.byHash[hash] = t.ID

		copied := *t
		result.Imported = append(result.Imported, &copied)
	}
	return result, nil
}

// AddTransaction seeds a transaction directly, bypassing dedup
func (m *MockRepository) AddTransaction(t ImportedTransaction) *ImportedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == 0 {
		t.ID = m.nextTxID
	}
	if t.ID >= m.nextTxID {
		m.nextTxID = t.ID + 1
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	m.transactions[t.ID] = &t
	copied := t
	return &copied
}

// GetTransaction retrieves a transaction from memory
func (m *MockRepository) GetTransaction(id int64) (*ImportedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetTransactionErr != nil {
		return nil, m.GetTransactionErr
	}
	t, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *t
	return &copied, nil
}

// ListPending returns pending transactions, oldest first
func (m *MockRepository) ListPending(limit int) ([]*ImportedTransaction, error) {
	return m.ListTransactions(TransactionFilter{Status: StatusPending, Limit: limit})
}

// ListTransactions returns transactions matching the filter, oldest first
func (m *MockRepository) ListTransactions(filter TransactionFilter) ([]*ImportedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var out []*ImportedTransaction
	for _, t := range m.transactions {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		copied := *t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimTransaction moves a pending transaction to applying
func (m *MockRepository) ClaimTransaction(id int64) (*ImportedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetTransactionErr != nil {
		return nil, m.GetTransactionErr
	}
	t, err := m.requireStatus(id, StatusPending)
	if err != nil {
		return nil, err
	}
	t.Status = StatusApplying
	copied := *t
	return &copied, nil
}

// ReleaseTransaction returns a claimed transaction to pending
func (m *MockRepository) ReleaseTransaction(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.requireStatus(id, StatusApplying)
	if err != nil {
		return err
	}
	t.Status = StatusPending
	return nil
}

// MarkReconciled records a match in memory
func (m *MockRepository) MarkReconciled(id int64, r Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MarkReconciledCalled = true
	m.LastReconciliation = &r
	if m.MarkReconciledErr != nil {
		return m.MarkReconciledErr
	}

	t, err := m.requireStatus(id, StatusPending, StatusApplying)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	invoiceID := r.InvoiceID
	t.Status = StatusReconciled
	t.MatchedInvoiceID = &invoiceID
	t.MatchedInvoiceType = r.InvoiceType
	t.MatchedInvoiceRef = r.InvoiceRef
	t.MatchedParty = r.PartyName
	t.PaymentID = r.PaymentID
	t.ReconciledAt = &now
	t.ReconciledBy = r.ReconciledBy
	return nil
}

// MarkIgnored flags a transaction as ignored in memory
func (m *MockRepository) MarkIgnored(id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.MarkIgnoredErr != nil {
		return m.MarkIgnoredErr
	}
	t, err := m.requireStatus(id, StatusPending)
	if err != nil {
		return err
	}
	t.Status = StatusIgnored
	t.IgnoreReason = reason
	return nil
}

// ResetTransaction returns a transaction to pending
func (m *MockRepository) ResetTransaction(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status == StatusApplying {
		return fmt.Errorf("%w: transaction %d is %s", ErrInvalidTransition, id, t.Status)
	}
	*t = ImportedTransaction{
		ID:         t.ID,
		Hash:       t.Hash,
		Date:       t.Date,
		Label:      t.Label,
		Amount:     t.Amount,
		RawData:    t.RawData,
		ImportedAt: t.ImportedAt,
		ImportFile: t.ImportFile,
		Status:     StatusPending,
	}
	return nil
}

// TransactionStats computes aggregates from memory
func (m *MockRepository) TransactionStats() (*TransactionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StatsErr != nil {
		return nil, m.StatsErr
	}
	stats := &TransactionStats{ByStatus: make(map[TransactionStatus]StatusTotals)}
	for _, t := range m.transactions {
		totals := stats.ByStatus[t.Status]
		totals.Count++
		totals.Total = totals.Total.Add(t.Amount)
		stats.ByStatus[t.Status] = totals
		stats.TotalCount++
		stats.TotalAmount = stats.TotalAmount.Add(t.Amount)

		if t.Status != StatusPending {
			continue
		}
		switch t.Amount.Sign() {
		case 1:
			stats.PendingCredit = stats.PendingCredit.Add(t.Amount)
			stats.CreditCount++
		case -1:
			stats.PendingDebit = stats.PendingDebit.Add(t.Amount)
			stats.DebitCount++
		}
	}
	return stats, nil
}

// AddPayment records a payment in memory
func (m *MockRepository) AddPayment(p *PaymentRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AddPaymentCalled = true
	m.LastPayment = p
	if m.AddPaymentErr != nil {
		return 0, m.AddPaymentErr
	}

	p.ID = m.nextPayID
	m.nextPayID++
	p.CreatedAt = time.Now().UTC()
	p.Status = PaymentCreated
	copied := *p
	m.payments[p.ID] = &copied
	return p.ID, nil
}

// ListPayments returns payments, most recent first
func (m *MockRepository) ListPayments(filter PaymentFilter) ([]*PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*PaymentRecord
	for _, p := range m.payments {
		if filter.InvoiceID != 0 && p.InvoiceID != filter.InvoiceID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.From != nil && p.PaidAt.Before(utcDay(*filter.From)) {
			continue
		}
		if filter.To != nil && p.PaidAt.After(utcDay(*filter.To)) {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPaymentLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CancelPayment flags a payment as cancelled in memory
func (m *MockRepository) CancelPayment(id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status == PaymentCancelled {
		return fmt.Errorf("%w: payment %d already cancelled", ErrInvalidTransition, id)
	}
	now := time.Now().UTC()
	p.Status = PaymentCancelled
	p.CancelledAt = &now
	p.CancelReason = reason
	return nil
}

// PaymentStatistics computes payment aggregates from memory
func (m *MockRepository) PaymentStatistics() (*PaymentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := utcDay(time.Now().UTC())
	stats := &PaymentStats{}
	for _, p := range m.payments {
		switch p.Status {
		case PaymentCreated:
			stats.TotalCreated++
			stats.TotalAmount = stats.TotalAmount.Add(p.Amount)
		case PaymentCancelled:
			stats.TotalCancelled++
		}
		if utcDay(p.CreatedAt).Equal(today) {
			stats.TodayCount++
		}
	}
	return stats, nil
}

// AddBankLine records a bank line in memory
func (m *MockRepository) AddBankLine(b *BankLineRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AddBankLineCalled = true
	if m.AddBankLineErr != nil {
		return 0, m.AddBankLineErr
	}
	b.ID = m.nextLineID
	m.nextLineID++
	b.Status = PaymentCreated
	m.bankLines = append(m.bankLines, *b)
	return b.ID, nil
}

// BankLines returns the recorded bank lines
func (m *MockRepository) BankLines() []BankLineRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BankLineRecord(nil), m.bankLines...)
}

// LogAction appends to the in-memory audit log
func (m *MockRepository) LogAction(a UserAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LogActionErr != nil {
		return m.LogActionErr
	}
	a.ID = int64(len(m.actions) + 1)
	a.CreatedAt = time.Now().UTC()
	m.actions = append(m.actions, a)
	return nil
}

// ListActions returns audit entries, newest first
func (m *MockRepository) ListActions(entityType string, entityID int64, limit int) ([]UserAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []UserAction
	for i := len(m.actions) - 1; i >= 0; i-- {
		a := m.actions[i]
		if entityType != "" && (a.EntityType != entityType || a.EntityID == nil || *a.EntityID != entityID) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockRepository) requireStatus(id int64, want ...TransactionStatus) (*ImportedTransaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, w := range want {
		if t.Status == w {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: transaction %d is %s", ErrInvalidTransition, id, t.Status)
}
