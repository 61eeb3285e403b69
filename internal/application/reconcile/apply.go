package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// Apply reconciles a pending transaction against an invoice or bank line.
// For invoices it creates the ERP payment unless the invoice is already paid
// or the request disables it, and records the payment in history.
//
// The transaction is claimed before any ERP call, so concurrent applies of
// the same transaction create at most one payment. A failed apply releases
// the claim unless a payment was already created; such a transaction stays
// applying until it is checked and reset.
func (o *Orchestrator) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := o.storage.ClaimTransaction(req.TransactionID)
	if err != nil {
		return nil, err
	}

	result, err := o.applyClaimed(ctx, tx, req)
	if err == nil {
		return result, nil
	}

	o.abandonClaim(tx.ID, result, err)
	return nil, err
}

// abandonClaim ends a failed apply. The claim is kept when the ERP already
// holds a payment or bank line for the transaction.
func (o *Orchestrator) abandonClaim(txID int64, result *ApplyResult, cause error) {
	if result.erpWritten() {
		args := []any{"tx_id", txID, "error", cause}
		if result.PaymentID != nil {
			args = append(args, "payment_id", *result.PaymentID)
		}
		if result.BankLineID != nil {
			args = append(args, "bank_line_id", *result.BankLineID)
		}
		o.logger.Error("ERP record created but transaction not reconciled, left applying", args...)
		return
	}
	if err := o.storage.ReleaseTransaction(txID); err != nil {
		o.logger.Warn("failed to release transaction", "tx_id", txID, "error", err)
	}
}

// applyClaimed does the work of Apply on a claimed transaction. On error the
// returned result, when not nil, tells what was already created in the ERP.
func (o *Orchestrator) applyClaimed(ctx context.Context, tx *storage.ImportedTransaction, req ApplyRequest) (*ApplyResult, error) {
	if req.InvoiceType == TargetBankLine {
		return o.applyBankLine(tx, req)
	}

	kind := matcher.InvoiceKind(req.InvoiceType)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, req.InvoiceType)
	}

	inv, err := o.erp.GetInvoice(ctx, kind, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %d: %w", req.InvoiceID, err)
	}

	result := &ApplyResult{
		TransactionID: tx.ID,
		InvoiceID:     inv.ID,
		InvoiceType:   string(kind),
		InvoiceRef:    inv.Ref,
		PartyName:     o.partyName(ctx, inv),
		Amount:        tx.Amount.Abs(),
		AlreadyPaid:   inv.AlreadyPaid(),
	}

	switch {
	case !req.CreatePayment:
		result.PaymentSkipped = true
	case result.AlreadyPaid:
		result.PaymentSkipped = true
		o.logger.Info("invoice already paid, no payment created", "tx_id", tx.ID, "invoice_ref", inv.Ref)
	default:
		paymentID, err := o.createPayment(ctx, tx, inv, kind, req, result.PartyName)
		if err != nil {
			return nil, err
		}
		result.PaymentID = &paymentID
	}

	err = o.storage.MarkReconciled(tx.ID, storage.Reconciliation{
		InvoiceID:    inv.ID,
		InvoiceType:  string(kind),
		InvoiceRef:   inv.Ref,
		PartyName:    result.PartyName,
		PaymentID:    result.PaymentID,
		ReconciledBy: reconciledBy(req.ReconciledBy),
	})
	if err != nil {
		return result, fmt.Errorf("failed to mark transaction %d reconciled: %w", tx.ID, err)
	}

	o.logger.Info("transaction reconciled",
		"tx_id", tx.ID,
		"invoice_ref", inv.Ref,
		"invoice_type", kind,
		"payment_created", result.PaymentID != nil,
	)
	return result, nil
}

func (o *Orchestrator) applyBankLine(tx *storage.ImportedTransaction, req ApplyRequest) (*ApplyResult, error) {
	err := o.storage.MarkReconciled(tx.ID, storage.Reconciliation{
		InvoiceID:    req.InvoiceID,
		InvoiceType:  TargetBankLine,
		ReconciledBy: reconciledBy(req.ReconciledBy),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark transaction %d reconciled: %w", tx.ID, err)
	}
	o.logger.Info("transaction matched to bank line", "tx_id", tx.ID, "line_id", req.InvoiceID)
	return &ApplyResult{
		TransactionID:  tx.ID,
		InvoiceID:      req.InvoiceID,
		InvoiceType:    TargetBankLine,
		Amount:         tx.Amount.Abs(),
		PaymentSkipped: true,
	}, nil
}

func (o *Orchestrator) createPayment(ctx context.Context, tx *storage.ImportedTransaction, inv *matcher.Invoice, kind matcher.InvoiceKind, req ApplyRequest, partyName string) (int64, error) {
	accountID := req.AccountID
	if accountID == 0 {
		accountID = o.settings.BankAccountID
	}
	if accountID == 0 {
		return 0, ErrNoBankAccount
	}
	mode := req.PaymentModeID
	if mode == 0 {
		mode = o.settings.PaymentModeID
	}

	paymentID, err := o.erp.AddPayment(ctx, kind, inv.ID, dolibarr.PaymentRequest{
		Date:              tx.Date,
		PaymentModeID:     mode,
		AccountID:         accountID,
		ClosePaidInvoices: true,
		Comment:           "Bank reconciliation: " + tx.Label,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create payment for invoice %s: %w", inv.Ref, err)
	}

	txID := tx.ID
	_, err = o.storage.AddPayment(&storage.PaymentRecord{
		PaymentID:        paymentID,
		InvoiceID:        inv.ID,
		InvoiceType:      string(kind),
		InvoiceRef:       inv.Ref,
		PartyName:        partyName,
		Amount:           tx.Amount.Abs(),
		PaidAt:           tx.Date,
		AccountID:        accountID,
		TransactionID:    &txID,
		TransactionLabel: tx.Label,
	})
	if err != nil {
		// The ERP payment exists; losing the history row must not hide it.
		o.logger.Error("failed to record payment history", "tx_id", tx.ID, "payment_id", paymentID, "error", err)
	}
	return paymentID, nil
}

// partyName falls back to the party record when the invoice payload did not
// carry the name.
func (o *Orchestrator) partyName(ctx context.Context, inv *matcher.Invoice) string {
	if inv.PartyName != "" || inv.PartyID == 0 {
		return inv.PartyName
	}
	party, err := o.erp.GetParty(ctx, inv.PartyID)
	if err != nil {
		o.logger.Debug("party lookup failed", "party_id", inv.PartyID, "error", err)
		return ""
	}
	return party.Name
}

// ApplyBatch applies each request independently; a failure never stops the
// rest of the batch.
func (o *Orchestrator) ApplyBatch(ctx context.Context, reqs []ApplyRequest) *BatchResult {
	out := &BatchResult{Items: make([]BatchItem, 0, len(reqs))}
	for _, req := range reqs {
		item := BatchItem{Request: req}
		if err := ctx.Err(); err != nil {
			item.Error = err.Error()
			out.Failed++
			out.Items = append(out.Items, item)
			continue
		}

		res, err := o.Apply(ctx, req)
		if err != nil {
			item.Error = err.Error()
			out.Failed++
			if !errors.Is(err, storage.ErrInvalidTransition) {
				o.logger.Warn("batch item failed", "tx_id", req.TransactionID, "error", err)
			}
		} else {
			item.Result = res
			out.Succeeded++
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func reconciledBy(who string) string {
	if who == "" {
		return "manual"
	}
	return who
}
