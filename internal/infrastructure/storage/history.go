package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const defaultPaymentLimit = 100

const paymentColumns = `id, payment_id, invoice_id, invoice_type, invoice_ref, thirdparty_name, amount,
	date_payment, account_id, account_label, transaction_id, transaction_label, comment,
	created_at, status, cancelled_at, cancel_reason`

// AddPayment records a payment created in the ERP
func (s *Storage) AddPayment(p *PaymentRecord) (int64, error) {
	createdAt := s.now()
	res, err := s.db.Exec(`
	INSERT INTO payment_history
	(payment_id, invoice_id, invoice_type, invoice_ref, thirdparty_name, amount, date_payment,
	 account_id, account_label, transaction_id, transaction_label, comment, created_at, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.PaymentID, p.InvoiceID, p.InvoiceType, p.InvoiceRef, p.PartyName, p.Amount.StringFixed(2),
		utcDay(p.PaidAt), p.AccountID, p.AccountLabel, p.TransactionID, p.TransactionLabel, p.Comment,
		createdAt, PaymentCreated)
	if err != nil {
		return 0, fmt.Errorf("failed to record payment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	p.CreatedAt = createdAt
	p.Status = PaymentCreated

	paymentID := p.PaymentID
	s.audit(UserAction{
		ActionType: ActionPaymentCreated,
		EntityType: "payment",
		EntityID:   &paymentID,
		Details: map[string]any{
			"invoice_id": p.InvoiceID,
			"amount":     p.Amount.StringFixed(2),
		},
	})
	return id, nil
}

// ListPayments returns payments, most recent first
func (s *Storage) ListPayments(filter PaymentFilter) ([]*PaymentRecord, error) {
	query := "SELECT " + paymentColumns + " FROM payment_history WHERE 1=1"
	var args []any

	if filter.From != nil {
		query += " AND date_payment >= ?"
		args = append(args, utcDay(*filter.From))
	}
	if filter.To != nil {
		query += " AND date_payment <= ?"
		args = append(args, utcDay(*filter.To))
	}
	if filter.InvoiceID != 0 {
		query += " AND invoice_id = ?"
		args = append(args, filter.InvoiceID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPaymentLimit
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CancelPayment flags a payment history record as cancelled. The ERP
// payment itself is left untouched.
func (s *Storage) CancelPayment(id int64, reason string) error {
	var status string
	err := s.db.QueryRow("SELECT status FROM payment_history WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if PaymentStatus(status) == PaymentCancelled {
		return fmt.Errorf("%w: payment %d already cancelled", ErrInvalidTransition, id)
	}

	_, err = s.db.Exec("UPDATE payment_history SET status = ?, cancelled_at = ?, cancel_reason = ? WHERE id = ?",
		PaymentCancelled, s.now(), reason, id)
	if err != nil {
		return fmt.Errorf("failed to cancel payment %d: %w", id, err)
	}

	return s.LogAction(UserAction{
		ActionType: ActionPaymentCancelled,
		EntityType: "payment",
		EntityID:   &id,
		Details:    map[string]any{"reason": reason},
	})
}

// PaymentStatistics returns payment aggregates
func (s *Storage) PaymentStatistics() (*PaymentStats, error) {
	rows, err := s.db.Query("SELECT status, amount, created_at FROM payment_history")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	today := utcDay(s.now())
	stats := &PaymentStats{}
	for rows.Next() {
		var status string
		var amount decimal.Decimal
		var createdAt time.Time
		if err := rows.Scan(&status, &amount, &createdAt); err != nil {
			return nil, err
		}

		switch PaymentStatus(status) {
		case PaymentCreated:
			stats.TotalCreated++
			stats.TotalAmount = stats.TotalAmount.Add(amount)
		case PaymentCancelled:
			stats.TotalCancelled++
		}
		if utcDay(createdAt.UTC()).Equal(today) {
			stats.TodayCount++
		}
	}
	return stats, rows.Err()
}

// AddBankLine records a bank line created in the ERP
func (s *Storage) AddBankLine(b *BankLineRecord) (int64, error) {
	lineType := b.Type
	if lineType == "" {
		lineType = "VIR"
	}

	createdAt := s.now()
	res, err := s.db.Exec(`
	INSERT INTO bank_line_history
	(line_id, account_id, account_label, amount, date_line, label, type, created_at, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.LineID, b.AccountID, b.AccountLabel, b.Amount.StringFixed(2), utcDay(b.Date), b.Label, lineType,
		createdAt, PaymentCreated)
	if err != nil {
		return 0, fmt.Errorf("failed to record bank line: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	b.ID = id
	b.Type = lineType
	b.CreatedAt = createdAt
	b.Status = PaymentCreated

	lineID := b.LineID
	s.audit(UserAction{
		ActionType: ActionBankLineCreated,
		EntityType: "bank_line",
		EntityID:   &lineID,
		Details: map[string]any{
			"account_id": b.AccountID,
			"amount":     b.Amount.StringFixed(2),
		},
	})
	return id, nil
}

func scanPayment(row rowScanner) (*PaymentRecord, error) {
	var p PaymentRecord
	var status string
	var invRef, party, accountLabel, txLabel, reason sql.NullString
	var accountID, txID sql.NullInt64
	var cancelledAt sql.NullTime

	err := row.Scan(&p.ID, &p.PaymentID, &p.InvoiceID, &p.InvoiceType, &invRef, &party, &p.Amount,
		&p.PaidAt, &accountID, &accountLabel, &txID, &txLabel, &p.Comment,
		&p.CreatedAt, &status, &cancelledAt, &reason)
	if err != nil {
		return nil, err
	}

	p.Status = PaymentStatus(status)
	p.InvoiceRef = invRef.String
	p.PartyName = party.String
	p.AccountID = accountID.Int64
	p.AccountLabel = accountLabel.String
	p.TransactionLabel = txLabel.String
	p.CancelReason = reason.String
	if txID.Valid {
		p.TransactionID = &txID.Int64
	}
	if cancelledAt.Valid {
		p.CancelledAt = &cancelledAt.Time
	}
	return &p, nil
}
