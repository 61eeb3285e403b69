package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/adapters/extractor"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
	"github.com/eshaffer321/bankrecon/internal/domain/namesim"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// ErrNoSupplier is returned when extracted data names no supplier and no
// party id was given.
var ErrNoSupplier = errors.New("supplier name or party id required")

// grossToNet converts a gross amount to net at the 20% VAT rate assumed when
// an invoice carries no amounts.
var grossToNet = decimal.RequireFromString("1.20")

// SupplierInvoiceResult holds the ERP ids created for an extracted invoice.
type SupplierInvoiceResult struct {
	InvoiceID      int64        `json:"invoice_id"`
	PartyID        int64        `json:"thirdparty_id"`
	PartyName      string       `json:"thirdparty_name"`
	PartyCreated   bool         `json:"thirdparty_created"`
	Reconciled     *ApplyResult `json:"reconciled,omitempty"`
	ReconcileError string       `json:"reconcile_error,omitempty"`
}

// CreateSupplierInvoice records a reviewed extraction as a draft supplier
// invoice. Without partyID the supplier is looked up by name and created
// when no existing party is equivalent.
func (o *Orchestrator) CreateSupplierInvoice(ctx context.Context, inv *extractor.InvoiceData, partyID int64) (*SupplierInvoiceResult, error) {
	return o.createSupplierInvoice(ctx, inv, partyID, decimal.Zero)
}

// CreateSupplierInvoiceAndApply creates the supplier invoice behind a pending
// outgoing transaction, then reconciles the transaction against it with
// req. When the extraction found no amounts the transaction amount is
// booked as gross at 20% VAT. A failed reconciliation does not undo the
// invoice; it is reported in ReconcileError.
func (o *Orchestrator) CreateSupplierInvoiceAndApply(ctx context.Context, inv *extractor.InvoiceData, partyID int64, req ApplyRequest) (*SupplierInvoiceResult, error) {
	tx, err := o.storage.GetTransaction(req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != storage.StatusPending {
		return nil, fmt.Errorf("%w: transaction %d is %s", storage.ErrInvalidTransition, tx.ID, tx.Status)
	}

	result, err := o.createSupplierInvoice(ctx, inv, partyID, tx.Amount.Abs())
	if err != nil {
		return nil, err
	}

	req.InvoiceID = result.InvoiceID
	req.InvoiceType = string(matcher.KindSupplier)
	applied, err := o.Apply(ctx, req)
	if err != nil {
		o.logger.Warn("supplier invoice created but transaction not reconciled",
			"tx_id", tx.ID,
			"invoice_id", result.InvoiceID,
			"error", err,
		)
		result.ReconcileError = err.Error()
		return result, nil
	}
	result.Reconciled = applied
	return result, nil
}

func (o *Orchestrator) createSupplierInvoice(ctx context.Context, inv *extractor.InvoiceData, partyID int64, fallbackGross decimal.Decimal) (*SupplierInvoiceResult, error) {
	if inv == nil {
		return nil, errors.New("no invoice data")
	}
	preview := extractor.NewPreview(inv)

	result := &SupplierInvoiceResult{PartyID: partyID, PartyName: inv.SupplierName}
	if partyID == 0 {
		if err := o.resolveSupplier(ctx, inv, result); err != nil {
			return nil, err
		}
	}

	ht, vat := inv.AmountHT, inv.TVAAmount
	switch {
	case preview.TotalTTC.IsZero() && fallbackGross.IsPositive():
		ht = fallbackGross.Div(grossToNet).Round(2)
		vat = fallbackGross.Sub(ht)
	case ht.IsZero():
		ht = preview.TotalTTC.Sub(vat)
	}
	req := dolibarr.SupplierInvoiceRequest{
		PartyID:     result.PartyID,
		RefSupplier: inv.InvoiceRef,
		TotalHT:     ht,
		TotalVAT:    vat,
		Description: inv.Description,
	}
	if preview.Date != nil {
		req.Date = *preview.Date
	}

	id, err := o.erp.CreateSupplierInvoice(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create supplier invoice %s: %w", inv.InvoiceRef, err)
	}
	result.InvoiceID = id

	o.logger.Info("supplier invoice created",
		"invoice_id", id,
		"invoice_ref", inv.InvoiceRef,
		"party_id", result.PartyID,
		"party_created", result.PartyCreated,
	)
	return result, nil
}

func (o *Orchestrator) resolveSupplier(ctx context.Context, inv *extractor.InvoiceData, result *SupplierInvoiceResult) error {
	if inv.SupplierName == "" {
		return ErrNoSupplier
	}

	parties, err := o.erp.SearchParties(ctx, inv.SupplierName)
	if err != nil {
		return fmt.Errorf("failed to search supplier %q: %w", inv.SupplierName, err)
	}
	threshold := o.matcher.Config().ConfidentNameSimilarity
	for _, p := range parties {
		if namesim.EquivalentAt(p.Name, inv.SupplierName, threshold) {
			result.PartyID = p.ID
			result.PartyName = p.Name
			return nil
		}
	}

	id, err := o.erp.CreateParty(ctx, dolibarr.PartyRequest{
		Name:     inv.SupplierName,
		Address:  inv.Address,
		Zip:      inv.ZipCode,
		Town:     inv.Town,
		Phone:    inv.Phone,
		Email:    inv.Email,
		Supplier: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create supplier %q: %w", inv.SupplierName, err)
	}
	result.PartyID = id
	result.PartyCreated = true
	return nil
}
