package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	referenceHitScore   = 150
	referenceAmountOK   = 50
	referenceAmountNear = 20
)

// Best returns the highest scoring candidate across all pools, or nil when
// none scores above BestMatchMinScore. Invoice candidates win ties because
// pools are scanned in argument order.
func (m *Matcher) Best(pools ...[]MatchCandidate) *MatchCandidate {
	var best *MatchCandidate
	for _, pool := range pools {
		for i := range pool {
			if best == nil || pool[i].raw > best.raw {
				best = &pool[i]
			}
		}
	}

	if best == nil || best.raw <= m.config.BestMatchMinScore {
		return nil
	}
	out := *best
	return &out
}

// ScoreReferenceHit builds the candidate for an invoice found through a
// reference printed in the label. Such an invoice is identified rather than
// guessed, so it starts at 150 and only the amount adds to it: +50 within the
// absolute tolerance, +20 within 5%.
func (m *Matcher) ScoreReferenceHit(tx Transaction, inv Invoice) MatchCandidate {
	txAmount := tx.Amount.Abs()
	target := inv.MatchAmount()
	diff := txAmount.Sub(target).Abs()

	score := referenceHitScore
	reasons := []string{fmt.Sprintf("exact reference: %s", inv.Ref)}

	largest := decimal.Max(txAmount, target, decimal.NewFromInt(1))
	switch {
	case diff.LessThan(m.config.AmountTolerance):
		score += referenceAmountOK
		reasons = append(reasons, "exact amount")
	case diff.Div(largest).LessThan(relRoughly):
		score += referenceAmountNear
		reasons = append(reasons, "amount within 5%")
	}

	c := newCandidate(TargetInvoice, score, reasons, diff)
	c.Invoice = &inv
	return c
}

// Evaluation is the full outcome of matching one transaction against
// pre-fetched candidate pools.
type Evaluation struct {
	Invoices  []MatchCandidate
	BankLines []MatchCandidate
	Best      *MatchCandidate
}

// Evaluate scores tx against both pools and picks the overall best.
func (m *Matcher) Evaluate(tx Transaction, invoices []Invoice, lines []BankLine) Evaluation {
	e := Evaluation{
		Invoices:  m.MatchInvoices(tx, invoices),
		BankLines: m.MatchBankLines(tx, lines),
	}
	e.Best = m.Best(e.Invoices, e.BankLines)
	return e
}
