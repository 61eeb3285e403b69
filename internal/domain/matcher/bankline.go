package matcher

import (
	"fmt"
)

// ScoreBankLine scores an existing ERP bank line against a transaction using
// amount equality, label word overlap and date proximity.
func (m *Matcher) ScoreBankLine(tx Transaction, line BankLine) MatchCandidate {
	txAmount := tx.Amount.Abs()
	lineAmount := line.Amount.Abs()
	diff := txAmount.Sub(lineAmount).Abs()

	score := 0
	var reasons []string

	if diff.LessThanOrEqual(m.config.AmountTolerance) {
		score += 100
		reasons = append(reasons, "exact amount")
	}

	if sim := labelSimilarity(tx.Label, line.Label); sim > 0.7 {
		score += int(sim * 30)
		reasons = append(reasons, fmt.Sprintf("similar label (%.0f%%)", sim*100))
	}

	if !line.Date.IsZero() {
		if pts, why := m.dateSignal(tx.Date, line.Date); pts > 0 {
			score += pts
			reasons = append(reasons, "date close ("+why+")")
		}
	}

	c := newCandidate(TargetBankLine, score, reasons, diff)
	c.BankLine = &line
	return c
}

// MatchBankLines returns the bank lines scoring above BankLineMinScore,
// highest first.
func (m *Matcher) MatchBankLines(tx Transaction, lines []BankLine) []MatchCandidate {
	var matches []MatchCandidate
	for _, line := range lines {
		c := m.ScoreBankLine(tx, line)
		if c.raw > m.config.BankLineMinScore {
			matches = append(matches, c)
		}
	}
	return m.rank(matches, m.config.MaxBankLineCandidates)
}
