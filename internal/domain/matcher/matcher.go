// Package matcher scores bank transactions against ERP invoices and bank
// lines.
//
// Every signal is additive:
//   - Amount closeness (exact, 0.1%, 1%, 5%)
//   - Invoice reference period vs transaction date (wrong year is a heavy penalty)
//   - Period mentioned in the label vs invoice reference period
//   - Invoice reference found in the label
//   - Counterparty name found in the label vs the invoice's party
//   - Due date proximity
//
// Scoring is pure: the same inputs always produce the same candidate.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	candidates := m.MatchInvoices(tx, invoices)
//	best := m.Best(candidates, m.MatchBankLines(tx, lines))
//	if best != nil {
//		// confident enough to reconcile
//	}
package matcher

import (
	"fmt"
	"slices"
	"strings"

	"github.com/eshaffer321/bankrecon/internal/domain/labels"
	"github.com/eshaffer321/bankrecon/internal/domain/namesim"
	"github.com/eshaffer321/bankrecon/internal/domain/reference"
)

// Matcher scores transactions against candidate invoices and bank lines
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	return &Matcher{
		config: config,
	}
}

// Config returns the matcher configuration.
func (m *Matcher) Config() Config {
	return m.config
}

// ScoreInvoice scores one invoice against a transaction. The second return
// value is false when the invoice cannot be a candidate at all because its
// total is zero.
func (m *Matcher) ScoreInvoice(tx Transaction, inv Invoice) (MatchCandidate, bool) {
	if inv.Total().IsZero() {
		return MatchCandidate{}, false
	}

	txAmount := tx.Amount.Abs()
	target := inv.MatchAmount()

	score := 0
	var reasons []string
	add := func(delta int, reason string) {
		score += delta
		reasons = append(reasons, reason)
	}

	if pts, why := m.amountSignal(txAmount, target); pts > 0 {
		add(pts, why)
	}

	// Period encoded in the invoice reference vs the transaction date.
	invPeriod, hasInvPeriod := labels.PeriodFromReference(inv.Ref)
	if hasInvPeriod {
		txPeriod := labels.PeriodOf(tx.Date)
		if invPeriod.Year != txPeriod.Year {
			add(-80, fmt.Sprintf("wrong year: transaction=%s invoice=%s", txPeriod.Year, invPeriod.Year))
		} else {
			add(20, fmt.Sprintf("same year (20%s)", invPeriod.Year))
			if invPeriod.Month == txPeriod.Month {
				add(15, fmt.Sprintf("same month (%s)", invPeriod.Month))
			}
		}
	}

	// Period written in the label vs the invoice reference period.
	if labelPeriod, ok := labels.PeriodFromLabel(tx.Label); ok && hasInvPeriod {
		switch {
		case labelPeriod == invPeriod:
			add(25, fmt.Sprintf("label period matches (%s)", labelPeriod))
		case labelPeriod.Year != invPeriod.Year:
			add(-30, fmt.Sprintf("label mentions %s", labelPeriod))
		}
	}

	if pts, why := m.referenceSignal(tx, inv); pts != 0 {
		add(pts, why)
	}

	if inv.DueDate != nil {
		if pts, why := m.dateSignal(tx.Date, *inv.DueDate); pts > 0 {
			add(pts, "due date close ("+why+")")
		}
	}

	for _, s := range m.partySignals(tx.Label, inv.PartyName) {
		add(s.points, s.reason)
	}

	c := newCandidate(TargetInvoice, score, reasons, txAmount.Sub(target).Abs())
	c.Invoice = &inv
	return c, true
}

// referenceSignal compares the transaction's reference, given or extracted
// from its label, with every reference of the invoice: +80 on a full match,
// +40 when only the last four characters agree.
func (m *Matcher) referenceSignal(tx Transaction, inv Invoice) (int, string) {
	txRef := tx.InvoiceRef
	if txRef == "" {
		txRef, _ = labels.InvoiceReference(tx.Label)
	}
	if txRef == "" {
		return 0, ""
	}

	refs := inv.References()
	for _, r := range refs {
		if reference.Match(txRef, r) {
			return 80, fmt.Sprintf("reference %s matches %s", reference.Normalize(txRef), r)
		}
	}
	for _, r := range refs {
		if reference.SameSuffix(txRef, r) {
			return 40, "partial reference ..." + reference.Suffix(txRef)
		}
	}
	return 0, ""
}

type signal struct {
	points int
	reason string
}

// partySignals checks that the invoice belongs to the party named in the
// label. The extracted name is compared first; when it does not confirm the
// party, the invoice's party name is looked up in the raw label.
func (m *Matcher) partySignals(label, partyName string) []signal {
	if partyName == "" {
		return nil
	}

	var out []signal
	extracted, hasExtracted := labels.CounterpartyName(label)
	confirmed := false

	if hasExtracted {
		sim := namesim.Similarity(extracted, partyName)
		switch {
		case sim >= m.config.ConfidentNameSimilarity:
			confirmed = true
			out = append(out, signal{60, fmt.Sprintf("party matches: %s ~ %s", extracted, partyName)})
		case sim >= m.config.WeakNameSimilarity:
			confirmed = true
			out = append(out, signal{40, fmt.Sprintf("party similar: %s ~ %s", extracted, partyName)})
		case sim < m.config.MismatchNameSimilarity:
			out = append(out, signal{-100, fmt.Sprintf("different party: %s vs %s", extracted, partyName)})
		}
	}

	if confirmed || label == "" {
		return out
	}

	upperLabel := strings.ToUpper(label)
	upperParty := strings.ToUpper(partyName)
	if strings.Contains(upperLabel, upperParty) {
		return append(out, signal{50, "party name in label"})
	}

	var words []string
	for _, w := range strings.Fields(upperParty) {
		if len([]rune(w)) > 2 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return out
	}

	found := 0
	for _, w := range words {
		if strings.Contains(upperLabel, w) {
			found++
		}
	}

	switch {
	case found*2 >= len(words):
		out = append(out, signal{30, fmt.Sprintf("party name words in label (%d/%d)", found, len(words))})
	case found == 0 && hasExtracted:
		out = append(out, signal{-80, "party not found in label"})
	}
	return out
}

// MatchInvoices scores every invoice the transaction could settle and
// returns the best ones, highest score first. Only invoices of the kind
// implied by the transaction sign are considered; invoices without a kind
// are assumed to be of that kind.
func (m *Matcher) MatchInvoices(tx Transaction, invoices []Invoice) []MatchCandidate {
	kind := KindFor(tx.Amount)

	var matches []MatchCandidate
	for _, inv := range invoices {
		if inv.Kind == "" {
			inv.Kind = kind
		}
		if inv.Kind != kind {
			continue
		}

		c, ok := m.ScoreInvoice(tx, inv)
		if !ok || c.raw < m.config.InvoiceMinScore {
			continue
		}
		matches = append(matches, c)
	}

	return m.rank(matches, m.config.MaxInvoiceCandidates)
}

// rank sorts candidates by raw score, keeping input order among equals, and
// truncates to limit.
func (m *Matcher) rank(c []MatchCandidate, limit int) []MatchCandidate {
	slices.SortStableFunc(c, func(a, b MatchCandidate) int {
		return b.raw - a.raw
	})
	if limit > 0 && len(c) > limit {
		c = c[:limit]
	}
	return c
}
