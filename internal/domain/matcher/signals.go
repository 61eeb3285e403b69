package matcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	relVeryClose = decimal.RequireFromString("0.001")
	relClose     = decimal.RequireFromString("0.01")
	relRoughly   = decimal.RequireFromString("0.05")
)

// amountSignal scores two non-negative amounts. Differences below the
// absolute tolerance score 100; otherwise the difference relative to the
// larger amount decides between 90 (<0.1%), 70 (<1%), 40 (<5%) and no match.
func (m *Matcher) amountSignal(a, b decimal.Decimal) (int, string) {
	diff := a.Sub(b).Abs()
	if diff.LessThan(m.config.AmountTolerance) {
		return 100, "exact amount"
	}

	largest := decimal.Max(a, b)
	if !largest.IsPositive() {
		return 0, ""
	}

	rel := diff.Div(largest)
	switch {
	case rel.LessThan(relVeryClose):
		return 90, "amount within 0.1%"
	case rel.LessThan(relClose):
		return 70, "amount within 1%"
	case rel.LessThan(relRoughly):
		return 40, "amount within 5%"
	}
	return 0, ""
}

// dateSignal scores calendar-day proximity: 30 on the same day, 25 one day
// apart, then 20 minus the gap up to the configured tolerance.
func (m *Matcher) dateSignal(a, b time.Time) (int, string) {
	days := dayDiff(a, b)
	switch {
	case days == 0:
		return 30, "same day"
	case days <= 1:
		return 25, "1 day apart"
	case days <= m.config.DateToleranceDays:
		return 20 - days, fmt.Sprintf("%d days apart", days)
	}
	return 0, ""
}

// dayDiff counts whole UTC calendar days between a and b.
func dayDiff(a, b time.Time) int {
	const day = 24 * time.Hour
	d := int(a.UTC().Truncate(day).Sub(b.UTC().Truncate(day)) / day)
	if d < 0 {
		return -d
	}
	return d
}

// labelSimilarity is the Jaccard index of the whitespace-separated word sets
// of two labels, compared upper-cased.
func labelSimilarity(a, b string) float64 {
	w1 := strings.Fields(strings.ToUpper(a))
	w2 := strings.Fields(strings.ToUpper(b))
	if len(w1) == 0 || len(w2) == 0 {
		return 0
	}

	set1 := make(map[string]bool, len(w1))
	for _, w := range w1 {
		set1[w] = true
	}
	set2 := make(map[string]bool, len(w2))
	for _, w := range w2 {
		set2[w] = true
	}

	shared := 0
	for w := range set1 {
		if set2[w] {
			shared++
		}
	}
	union := len(set1) + len(set2) - shared
	return float64(shared) / float64(union)
}
