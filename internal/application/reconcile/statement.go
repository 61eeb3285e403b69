package reconcile

import (
	"context"
	"fmt"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

// statementInvoiceLimit bounds each unpaid invoice pool of MatchStatement.
const statementInvoiceLimit = 500

// MatchStatement scores transactions that were never imported against every
// unpaid customer and supplier invoice, and against the lines of accountID
// when it is not zero. Nothing is stored and nothing is written to the ERP.
func (o *Orchestrator) MatchStatement(ctx context.Context, txs []matcher.Transaction, accountID int64) ([]StatementMatch, error) {
	var invoices []matcher.Invoice
	for _, kind := range []matcher.InvoiceKind{matcher.KindCustomer, matcher.KindSupplier} {
		pool, err := o.erp.ListInvoices(ctx, kind, dolibarr.StatusUnpaid, statementInvoiceLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load unpaid %s invoices: %w", kind, err)
		}
		invoices = append(invoices, pool...)
	}

	var lines []matcher.BankLine
	if accountID != 0 {
		var err error
		lines, err = o.erp.ListBankLines(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to load bank lines: %w", err)
		}
	}

	o.logger.Info("matching statement",
		"transactions", len(txs),
		"invoices", len(invoices),
		"bank_lines", len(lines),
	)

	out := make([]StatementMatch, 0, len(txs))
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := o.matcher.Evaluate(tx, invoices, lines)
		m := StatementMatch{
			Transaction: tx,
			Invoices:    e.Invoices,
			BankLines:   e.BankLines,
			Best:        e.Best,
		}
		if m.Invoices == nil {
			m.Invoices = []matcher.MatchCandidate{}
		}
		if m.BankLines == nil {
			m.BankLines = []matcher.MatchCandidate{}
		}
		out = append(out, m)
	}
	return out, nil
}
