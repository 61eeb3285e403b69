package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = 2000
	dateLayout       = "2006-01-02"
)

// TransactionHash identifies a statement row independently of the file it
// came from: date, trimmed upper-cased label and two-decimal amount.
func TransactionHash(date time.Time, label string, amount decimal.Decimal) string {
	data := fmt.Sprintf("%s|%s|%s", date.Format(dateLayout), strings.ToUpper(strings.TrimSpace(label)), amount.StringFixed(2))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:32]
}

const transactionColumns = `id, hash, date_transaction, label, amount, raw_data, import_date, import_file,
	status, matched_invoice_id, matched_invoice_type, matched_invoice_ref, matched_thirdparty,
	payment_id, reconciled_at, reconciled_by, ignore_reason`

// ImportTransactions inserts every row whose hash is not stored yet, in a
// single database transaction.
func (s *Storage) ImportTransactions(importFile string, rows []NewTransaction) (*ImportResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	importedAt := s.now()
	result := &ImportResult{
		BatchID:    uuid.NewString(),
		Imported:   make([]*ImportedTransaction, 0, len(rows)),
		Duplicates: make([]Duplicate, 0),
	}

	for i, row := range rows {
		if row.Date.IsZero() {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: missing date", i+1))
			continue
		}

		date := utcDay(row.Date)
		hash := TransactionHash(date, row.Label, row.Amount)

		var existingID int64
		var existingStatus string
		err := tx.QueryRow("SELECT id, status FROM imported_transactions WHERE hash = ?", hash).
			Scan(&existingID, &existingStatus)
		switch {
		case err == nil:
			result.Duplicates = append(result.Duplicates, Duplicate{
				Row:            row,
				ExistingID:     existingID,
				ExistingStatus: TransactionStatus(existingStatus),
			})
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("failed to check duplicate: %w", err)
		}

		res, err := tx.Exec(`
		INSERT INTO imported_transactions
		(hash, date_transaction, label, amount, raw_data, import_date, import_file, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, hash, date, row.Label, row.Amount.StringFixed(2), row.RawData, importedAt, importFile, StatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transaction: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}

		result.Imported = append(result.Imported, &ImportedTransaction{
			ID:         id,
			Hash:       hash,
			Date:       date,
			Label:      row.Label,
			Amount:     row.Amount,
			RawData:    row.RawData,
			ImportedAt: importedAt,
			ImportFile: importFile,
			Status:     StatusPending,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit(UserAction{
		ActionType: ActionImport,
		EntityType: "import",
		Details: map[string]any{
			"batch_id":   result.BatchID,
			"file":       importFile,
			"imported":   len(result.Imported),
			"duplicates": len(result.Duplicates),
		},
	})

	return result, nil
}

// GetTransaction retrieves a transaction by ID
func (s *Storage) GetTransaction(id int64) (*ImportedTransaction, error) {
	row := s.db.QueryRow("SELECT "+transactionColumns+" FROM imported_transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListPending returns pending transactions, oldest first
func (s *Storage) ListPending(limit int) ([]*ImportedTransaction, error) {
	return s.ListTransactions(TransactionFilter{Status: StatusPending, Limit: limit})
}

// ListTransactions returns transactions matching the filter, oldest first
func (s *Storage) ListTransactions(filter TransactionFilter) ([]*ImportedTransaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := "SELECT " + transactionColumns + " FROM imported_transactions"
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY date_transaction ASC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ImportedTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimTransaction moves a pending transaction to applying and returns it.
// The status check and the update are a single statement, so of two
// concurrent claims exactly one succeeds; the other gets
// ErrInvalidTransition.
func (s *Storage) ClaimTransaction(id int64) (*ImportedTransaction, error) {
	res, err := s.db.Exec("UPDATE imported_transactions SET status = ? WHERE id = ? AND status = ?",
		StatusApplying, id, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.transitionError(id)
	}
	return s.GetTransaction(id)
}

// ReleaseTransaction returns a claimed transaction to pending.
func (s *Storage) ReleaseTransaction(id int64) error {
	res, err := s.db.Exec("UPDATE imported_transactions SET status = ? WHERE id = ? AND status = ?",
		StatusPending, id, StatusApplying)
	if err != nil {
		return fmt.Errorf("failed to release transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.transitionError(id)
	}
	return nil
}

// RecoverClaims releases transactions left in applying by an interrupted
// process. Claims whose payment was already recorded stay in applying and
// are returned as kept: they need a manual reset after checking the ERP.
func (s *Storage) RecoverClaims() (released int, kept []int64, err error) {
	rows, err := s.db.Query(`
	SELECT id FROM imported_transactions t
	WHERE t.status = ? AND EXISTS (
		SELECT 1 FROM payment_history p WHERE p.transaction_id = t.id AND p.status = ?
	)`, StatusApplying, PaymentCreated)
	if err != nil {
		return 0, nil, err
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, nil, err
		}
		kept = append(kept, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	res, err := s.db.Exec(`
	UPDATE imported_transactions SET status = ?
	WHERE status = ? AND NOT EXISTS (
		SELECT 1 FROM payment_history p WHERE p.transaction_id = imported_transactions.id AND p.status = ?
	)`, StatusPending, StatusApplying, PaymentCreated)
	if err != nil {
		return 0, kept, fmt.Errorf("failed to release claims: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), kept, nil
}

// MarkReconciled records the match of a pending or claimed transaction
func (s *Storage) MarkReconciled(id int64, r Reconciliation) error {
	by := r.ReconciledBy
	if by == "" {
		by = "system"
	}

	res, err := s.db.Exec(`
	UPDATE imported_transactions
	SET status = ?, matched_invoice_id = ?, matched_invoice_type = ?, matched_invoice_ref = ?,
	    matched_thirdparty = ?, payment_id = ?, reconciled_at = ?, reconciled_by = ?
	WHERE id = ? AND status IN (?, ?)
	`, StatusReconciled, r.InvoiceID, r.InvoiceType, r.InvoiceRef, r.PartyName, r.PaymentID, s.now(), by,
		id, StatusPending, StatusApplying)
	if err != nil {
		return fmt.Errorf("failed to reconcile transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.transitionError(id)
	}

	details := map[string]any{
		"invoice_id":   r.InvoiceID,
		"invoice_type": r.InvoiceType,
	}
	if r.PaymentID != nil {
		details["payment_id"] = *r.PaymentID
	}
	s.audit(UserAction{
		ActionType: ActionTransactionReconciled,
		EntityType: "transaction",
		EntityID:   &id,
		Details:    details,
		UserName:   by,
	})
	return nil
}

// MarkIgnored excludes a pending transaction from reconciliation
func (s *Storage) MarkIgnored(id int64, reason string) error {
	res, err := s.db.Exec("UPDATE imported_transactions SET status = ?, ignore_reason = ? WHERE id = ? AND status = ?",
		StatusIgnored, reason, id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to ignore transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.transitionError(id)
	}

	s.audit(UserAction{
		ActionType: ActionTransactionIgnored,
		EntityType: "transaction",
		EntityID:   &id,
		Details:    map[string]any{"reason": reason},
	})
	return nil
}

// ResetTransaction returns a transaction to pending and clears its match.
// A transaction being applied cannot be reset.
func (s *Storage) ResetTransaction(id int64) error {
	res, err := s.db.Exec(`
	UPDATE imported_transactions
	SET status = ?, matched_invoice_id = NULL, matched_invoice_type = NULL, matched_invoice_ref = NULL,
	    matched_thirdparty = NULL, payment_id = NULL, reconciled_at = NULL, reconciled_by = NULL,
	    ignore_reason = NULL
	WHERE id = ? AND status != ?
	`, StatusPending, id, StatusApplying)
	if err != nil {
		return fmt.Errorf("failed to reset transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.transitionError(id)
	}

	s.audit(UserAction{
		ActionType: ActionTransactionReset,
		EntityType: "transaction",
		EntityID:   &id,
	})
	return nil
}

// TransactionStats returns per-status aggregates plus the split of pending
// amounts between credits and debits.
func (s *Storage) TransactionStats() (*TransactionStats, error) {
	rows, err := s.db.Query("SELECT status, amount FROM imported_transactions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &TransactionStats{ByStatus: make(map[TransactionStatus]StatusTotals)}
	for rows.Next() {
		var status string
		var amount decimal.Decimal
		if err := rows.Scan(&status, &amount); err != nil {
			return nil, err
		}

		st := TransactionStatus(status)
		totals := stats.ByStatus[st]
		totals.Count++
		totals.Total = totals.Total.Add(amount)
		stats.ByStatus[st] = totals

		stats.TotalCount++
		stats.TotalAmount = stats.TotalAmount.Add(amount)

		if st != StatusPending {
			continue
		}
		switch amount.Sign() {
		case 1:
			stats.PendingCredit = stats.PendingCredit.Add(amount)
			stats.CreditCount++
		case -1:
			stats.PendingDebit = stats.PendingDebit.Add(amount)
			stats.DebitCount++
		}
	}
	return stats, rows.Err()
}

// transitionError explains why a guarded update touched no row.
func (s *Storage) transitionError(id int64) error {
	var status string
	err := s.db.QueryRow("SELECT status FROM imported_transactions WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: transaction %d is %s", ErrInvalidTransition, id, status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*ImportedTransaction, error) {
	var t ImportedTransaction
	var status string
	var rawData, invType, invRef, party, by, reason sql.NullString
	var invoiceID, paymentID sql.NullInt64
	var reconciledAt sql.NullTime

	err := row.Scan(&t.ID, &t.Hash, &t.Date, &t.Label, &t.Amount, &rawData, &t.ImportedAt, &t.ImportFile,
		&status, &invoiceID, &invType, &invRef, &party, &paymentID, &reconciledAt, &by, &reason)
	if err != nil {
		return nil, err
	}

	t.Status = TransactionStatus(status)
	t.RawData = rawData.String
	t.MatchedInvoiceType = invType.String
	t.MatchedInvoiceRef = invRef.String
	t.MatchedParty = party.String
	t.ReconciledBy = by.String
	t.IgnoreReason = reason.String
	if invoiceID.Valid {
		t.MatchedInvoiceID = &invoiceID.Int64
	}
	if paymentID.Valid {
		t.PaymentID = &paymentID.Int64
	}
	if reconciledAt.Valid {
		t.ReconciledAt = &reconciledAt.Time
	}
	return &t, nil
}
