// Package labels extracts structured hints from free-text bank statement
// labels: the counterparty name, an embedded invoice reference and the
// billing period the payment refers to.
//
// Labels come from French bank exports (Pacific/metropolitan banks), so the
// rules below target phrasings such as "VIRT RECU <NAME> EUR ...",
// "PREL C/C <NAME> PRELEVEMENT ..." or "TRANSF FAV <NAME> ...".
//
// Example usage:
//
//	name, ok := labels.CounterpartyName("VIRT RECU M. ORIO ILTUD EUR 950,00")
//	// name == "ORIO ILTUD", ok == true
//
//	ref, ok := labels.InvoiceReference("VIR SEPA RECU IN25120498")
//	// ref == "IN2512-0498"
package labels

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minNameLength is the shortest counterparty name accepted, in runes.
const minNameLength = 3

// nameRule is one step of the counterparty extraction chain. A rule matches
// the upper-cased label, takes its first capture group and runs cleanup on
// it. The chain stops at the first rule producing an acceptable name.
type nameRule struct {
	pattern *regexp.Regexp
	cleanup func(string) string
}

func (r nameRule) apply(label string) (string, bool) {
	m := r.pattern.FindStringSubmatch(label)
	if m == nil {
		return "", false
	}

	name := r.cleanup(strings.TrimSpace(m[1]))
	if utf8.RuneCountInString(name) < minNameLength {
		return "", false
	}
	return name, true
}

var (
	trailingAmount = regexp.MustCompile(`\s+(?:EUR|XPF|USD|CHF|\d+[,.]\d+).*$`)
	trailingFrom   = regexp.MustCompile(`(?i)\s+de\s+.*$`)
	trailingSlash  = regexp.MustCompile(`\s+/\s*$`)
	trailingRef    = regexp.MustCompile(`\s+IN\d+.*$`)
	legalPrefix    = regexp.MustCompile(`^(?:SARL|SAS|EURL|SA|SCI|SNC|SASU|ETS|CIE)\s+`)
)

// cleanName strips trailing currency and amount tokens, "de ..." clauses,
// dangling slashes and embedded IN references, then drops a leading legal
// form when what remains is still long enough to identify the party.
func cleanName(name string) string {
	name = trailingAmount.ReplaceAllString(name, "")
	name = trailingFrom.ReplaceAllString(name, "")
	name = trailingSlash.ReplaceAllString(name, "")
	name = trailingRef.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)

	if stripped := legalPrefix.ReplaceAllString(name, ""); utf8.RuneCountInString(stripped) >= minNameLength {
		name = stripped
	}
	return name
}

func rule(expr string) nameRule {
	return nameRule{pattern: regexp.MustCompile(`(?i)` + expr), cleanup: cleanName}
}

// nameRules is ordered most specific first.
var nameRules = []nameRule{
	// VIRT RECU M. FIRSTNAME LASTNAME EUR
	rule(`VIRT\s+RECU\s+(?:M\.|MME|MR|MRS|MLLE)?\s*([A-Z][A-Za-z\-]+(?:\s+[A-Z][A-Za-z\-]+){0,2})\s+EUR`),
	rule(`VIRT\s+RECU\s+([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)?)\s+EUR`),
	// VIRT RECU SARL COMPANY IN2512...
	rule(`VIRT\s+RECU\s+((?:SARL|SAS|EURL|SA|SCI|SNC|SASU)?\s*[A-Z][A-Za-z\-]+(?:\s+[A-Z][A-Za-z\-]+)?)\s+IN`),
	rule(`VIRT\s+RECU\s+(?:M\.|MME|MR|MRS|MLLE)?\s*([A-Z][A-Za-z\-]+(?:\s+[A-Z][A-Za-z\-]+){0,2})(?:\s+EUR|\s+XPF|\s+IN|\s+/)`),
	// VIRT FAV COMPANY Facture ...
	rule(`VIRT\s+(?:FAV|EUR)\s+([A-Z][A-Z0-9\s\-\.]+?)(?:\s+Facture|\s+FAC|\s+N\d|\s+EUR|\s*$)`),
	// PREL C/C COMPANY PRELEVEMENT
	rule(`PREL\s+C/C\s+([A-Z][A-Z0-9\s\-\.]+?)(?:\s+PREL|\s+PRELEVEMENT|\s*$)`),
	rule(`(?:FRS\s+)?TRANSF\s+FAV\s+([A-Z][A-Za-z0-9\s\-\.]+?)(?:\s+EUR|\s+XPF|\s+\d|\s*$)`),
	// bank fees on outgoing transfers
	rule(`CION\s+(?:S/\s+)?(?:TRANSF\s+)?(?:FAV\s+)?([A-Z][A-Za-z0-9\s\-\.]+?)(?:\s+EUR|\s+XPF|\s+\d|\s*$)`),
	rule(`VIR\s+ETR\s+RECU\s+O/\s*([A-Z][A-Za-z0-9\s\-\.]+?)(?:\s+EUR|\s+XPF|\s+\d|\s*$)`),
	rule(`VIR\s+(?:SEPA\s+)?RECU\s+(?:DE:?\s+)?([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+){0,2})`),
	rule(`PREL\s+C/C\s+(?:SAS\s+)?([A-Z][A-Z0-9\s\-\.]+?)(?:\s+-|\s+ABONNE|\s+FAC|\s*$)`),
}

// CounterpartyName returns the payer or payee name found in label. The first
// rule that yields a name of at least three characters wins; later rules are
// not consulted.
func CounterpartyName(label string) (string, bool) {
	l := strings.ToUpper(strings.TrimSpace(label))
	if l == "" {
		return "", false
	}

	for _, r := range nameRules {
		if name, ok := r.apply(l); ok {
			return name, true
		}
	}
	return "", false
}
