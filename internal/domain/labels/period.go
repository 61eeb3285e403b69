package labels

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Period is a billing month: Month is "01".."12", Year the last two digits.
type Period struct {
	Month string `json:"month"`
	Year  string `json:"year"`
}

// String renders the period as MM/YY.
func (p Period) String() string {
	return p.Month + "/" + p.Year
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{
		Month: fmt.Sprintf("%02d", int(t.Month())),
		Year:  fmt.Sprintf("%02d", t.Year()%100),
	}
}

type monthName struct {
	name   string
	number string
}

// monthNames is searched in order, so full names come before their
// abbreviations.
var monthNames = []monthName{
	{"janvier", "01"}, {"jan", "01"}, {"janv", "01"},
	{"fevrier", "02"}, {"février", "02"}, {"fev", "02"}, {"févr", "02"},
	{"mars", "03"}, {"mar", "03"},
	{"avril", "04"}, {"avr", "04"},
	{"mai", "05"},
	{"juin", "06"}, {"jun", "06"},
	{"juillet", "07"}, {"juil", "07"}, {"jul", "07"},
	{"aout", "08"}, {"août", "08"}, {"aou", "08"},
	{"septembre", "09"}, {"sept", "09"}, {"sep", "09"},
	{"octobre", "10"}, {"oct", "10"},
	{"novembre", "11"}, {"nov", "11"},
	{"decembre", "12"}, {"décembre", "12"}, {"dec", "12"}, {"déc", "12"},
}

type monthPattern struct {
	re     *regexp.Regexp
	number string
}

var (
	monthPatterns = buildMonthPatterns()

	numericLongYear  = regexp.MustCompile(`\b(\d{2})[/\-.](\d{4})\b`)
	numericShortYear = regexp.MustCompile(`\b(\d{2})[/\-.](\d{2})\b`)

	customerRefPeriod = regexp.MustCompile(`(?i)IN(\d{2})(\d{2})[-\s]?\d+`)
	supplierRefPeriod = regexp.MustCompile(`(?i)FAC?(\d{2})(\d{2})[-\s]?\d+`)
)

func buildMonthPatterns() []monthPattern {
	patterns := make([]monthPattern, 0, len(monthNames))
	for _, m := range monthNames {
		patterns = append(patterns, monthPattern{
			re:     regexp.MustCompile(`\b` + regexp.QuoteMeta(m.name) + `\s*['"]?\s*(\d{2}(?:\d{2})?)\b`),
			number: m.number,
		})
	}
	return patterns
}

// PeriodFromLabel extracts the billing period mentioned in a label, trying
// in order: a French month name followed by a 2 or 4 digit year
// ("janvier 25", "mars 2025"), then MM/YYYY, then MM/YY.
func PeriodFromLabel(label string) (Period, bool) {
	if label == "" {
		return Period{}, false
	}

	lower := strings.ToLower(label)
	for _, mp := range monthPatterns {
		if m := mp.re.FindStringSubmatch(lower); m != nil {
			year := m[1]
			if len(year) == 4 {
				year = year[2:]
			}
			return Period{Month: mp.number, Year: year}, true
		}
	}

	if m := numericLongYear.FindStringSubmatch(label); m != nil && validMonth(m[1]) {
		return Period{Month: m[1], Year: m[2][2:]}, true
	}

	if m := numericShortYear.FindStringSubmatch(label); m != nil && validMonth(m[1]) {
		return Period{Month: m[1], Year: m[2]}, true
	}

	return Period{}, false
}

// PeriodFromReference reads the YYMM block of an ERP invoice reference:
// IN2501-0235 is January 2025. References without that block, such as the
// ERP's provisional "(PROV25)", have no period.
func PeriodFromReference(ref string) (Period, bool) {
	if ref == "" {
		return Period{}, false
	}

	for _, re := range []*regexp.Regexp{customerRefPeriod, supplierRefPeriod} {
		if m := re.FindStringSubmatch(ref); m != nil && validMonth(m[2]) {
			return Period{Month: m[2], Year: m[1]}, true
		}
	}
	return Period{}, false
}

func validMonth(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 1 && n <= 12
}
