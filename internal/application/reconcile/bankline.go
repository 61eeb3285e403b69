package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// CreateBankLine books a pending transaction as a new entry on an ERP bank
// account, records it in bank line history and marks the transaction
// reconciled against the new line. It is the path for movements no invoice
// accounts for, such as bank fees.
//
// The transaction is claimed first, as in Apply.
func (o *Orchestrator) CreateBankLine(ctx context.Context, req BankLineRequest) (*ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	accountID := req.AccountID
	if accountID == 0 {
		accountID = o.settings.BankAccountID
	}
	if accountID == 0 {
		return nil, ErrNoBankAccount
	}

	tx, err := o.storage.ClaimTransaction(req.TransactionID)
	if err != nil {
		return nil, err
	}

	result, err := o.bookBankLine(ctx, tx, accountID, req)
	if err != nil {
		o.abandonClaim(tx.ID, result, err)
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) bookBankLine(ctx context.Context, tx *storage.ImportedTransaction, accountID int64, req BankLineRequest) (*ApplyResult, error) {
	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = tx.Label
	}
	lineType := strings.ToUpper(strings.TrimSpace(req.Type))
	if lineType == "" {
		lineType = "VIR"
	}

	lineID, err := o.erp.AddBankLine(ctx, accountID, dolibarr.BankLineRequest{
		Date:   tx.Date,
		Type:   lineType,
		Label:  label,
		Amount: tx.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bank line for transaction %d: %w", tx.ID, err)
	}

	result := &ApplyResult{
		TransactionID:  tx.ID,
		InvoiceID:      lineID,
		InvoiceType:    TargetBankLine,
		Amount:         tx.Amount.Abs(),
		PaymentSkipped: true,
		BankLineID:     &lineID,
	}

	_, err = o.storage.AddBankLine(&storage.BankLineRecord{
		LineID:    lineID,
		AccountID: accountID,
		Amount:    tx.Amount.Abs(),
		Date:      tx.Date,
		Label:     label,
		Type:      lineType,
	})
	if err != nil {
		o.logger.Error("failed to record bank line history", "tx_id", tx.ID, "line_id", lineID, "error", err)
	}

	err = o.storage.MarkReconciled(tx.ID, storage.Reconciliation{
		InvoiceID:    lineID,
		InvoiceType:  TargetBankLine,
		ReconciledBy: reconciledBy(req.ReconciledBy),
	})
	if err != nil {
		return result, fmt.Errorf("failed to mark transaction %d reconciled: %w", tx.ID, err)
	}

	o.logger.Info("transaction booked as bank line",
		"tx_id", tx.ID,
		"account_id", accountID,
		"line_id", lineID,
		"type", lineType,
	)
	return result, nil
}
