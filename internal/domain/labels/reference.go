package labels

import (
	"regexp"
	"strings"
)

// refRule finds one reference family in an upper-cased label. Dashed forms
// are returned as found; compact forms are rebuilt with the dash.
type refRule struct {
	pattern *regexp.Regexp
	prefix  string
	compact bool
}

var refRules = []refRule{
	{pattern: regexp.MustCompile(`(IN\d{4}-\d{3,4})`)},
	{pattern: regexp.MustCompile(`IN(\d{4})(\d{3,4})`), prefix: "IN", compact: true},
	{pattern: regexp.MustCompile(`(FAC\d{4}-\d{3,4})`)},
	{pattern: regexp.MustCompile(`FAC(\d{4})(\d{3,4})`), prefix: "FAC", compact: true},
}

// InvoiceReference returns the first IN or FAC invoice reference embedded in
// label, in dashed canonical form (IN2512-0498).
func InvoiceReference(label string) (string, bool) {
	if label == "" {
		return "", false
	}
	l := strings.ToUpper(label)

	for _, r := range refRules {
		m := r.pattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if r.compact {
			return r.prefix + m[1] + "-" + m[2], true
		}
		return m[1], true
	}
	return "", false
}
