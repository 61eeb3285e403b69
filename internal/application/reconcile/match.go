package reconcile

import (
	"context"

	"github.com/eshaffer321/bankrecon/internal/domain/labels"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

// FindBestMatch returns the single best candidate for tx, or nil when no
// candidate scores above the best-match threshold. ERP failures are logged
// and treated as empty results, so the error is reserved for cancellation.
func (o *Orchestrator) FindBestMatch(ctx context.Context, tx matcher.Transaction) (*matcher.MatchCandidate, error) {
	s, err := o.Suggest(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.Best, nil
}

// Suggest runs the full lookup for tx and keeps every candidate, for the
// per-transaction review screen.
func (o *Orchestrator) Suggest(ctx context.Context, tx matcher.Transaction) (*Suggestion, error) {
	lines := o.bankLines(ctx)
	return o.suggest(ctx, tx, lines)
}

func (o *Orchestrator) suggest(ctx context.Context, tx matcher.Transaction, lines []matcher.BankLine) (*Suggestion, error) {
	s := &Suggestion{
		TransactionID: tx.ID,
		Invoices:      []matcher.MatchCandidate{},
		BankLines:     []matcher.MatchCandidate{},
	}

	// Tier 1: a reference printed in the label identifies the invoice.
	ref := tx.InvoiceRef
	if ref == "" {
		ref, _ = labels.InvoiceReference(tx.Label)
	}
	s.InvoiceRef = ref
	if ref != "" {
		inv, err := o.erp.FindInvoiceByReference(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("reference lookup failed", "tx_id", tx.ID, "invoice_ref", ref, "error", err)
		}
		if inv != nil {
			s.Source = SourceReference
			s.Invoices = []matcher.MatchCandidate{o.matcher.ScoreReferenceHit(tx, *inv)}
		}
	}

	// Tier 2: the counterparty named in the label.
	if name, ok := labels.CounterpartyName(tx.Label); ok {
		s.Counterparty = name
		if s.Source == SourceNone {
			invoices, err := o.partyInvoices(ctx, tx, name, s)
			if err != nil {
				return nil, err
			}
			if len(invoices) > 0 {
				s.Source = SourceParty
				s.Invoices = o.matcher.MatchInvoices(tx, invoices)
			}
		}
	}

	s.BankLines = o.matcher.MatchBankLines(tx, lines)
	s.Best = o.matcher.Best(s.Invoices, s.BankLines)

	if s.Best != nil {
		o.logger.Debug("best match",
			"tx_id", tx.ID,
			"target", s.Best.Target,
			"score", s.Best.Score,
			"source", s.Source,
		)
	}
	return s, nil
}

// partyInvoices resolves the counterparty through the first search variants
// and lists its invoices of the kind the transaction sign implies, paid ones
// included.
func (o *Orchestrator) partyInvoices(ctx context.Context, tx matcher.Transaction, name string, s *Suggestion) ([]matcher.Invoice, error) {
	variants := labels.SearchVariants(name)
	if len(variants) > maxSearchVariants {
		variants = variants[:maxSearchVariants]
	}

	for _, v := range variants {
		parties, err := o.erp.SearchParties(ctx, v)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("party search failed", "tx_id", tx.ID, "name", v, "error", err)
			continue
		}
		if len(parties) == 0 {
			continue
		}

		party := parties[0]
		s.Party = &party
		invoices, err := o.erp.ListPartyInvoices(ctx, party.ID, matcher.KindFor(tx.Amount), true)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("party invoice listing failed", "tx_id", tx.ID, "party_id", party.ID, "error", err)
			return nil, nil
		}
		return invoices, nil
	}
	return nil, nil
}

// bankLines fetches the configured account's lines, or nothing when no
// account is configured or the ERP fails.
func (o *Orchestrator) bankLines(ctx context.Context) []matcher.BankLine {
	if o.settings.BankAccountID == 0 {
		return nil
	}
	lines, err := o.erp.ListBankLines(ctx, o.settings.BankAccountID)
	if err != nil {
		o.logger.Warn("bank line listing failed", "account_id", o.settings.BankAccountID, "error", err)
		return nil
	}
	return lines
}
