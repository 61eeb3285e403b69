// Package reference canonicalizes ERP invoice references so that the same
// reference written with or without separators compares equal.
//
// Two families are recognized: customer references (IN2512-0498) and
// supplier references (FAC2512-0498). Both carry a 4-digit YYMM block and a
// 3-4 digit sequence. Anything else is treated as an opaque string.
//
// Example usage:
//
//	reference.Normalize("in25120498")                // "IN2512-0498"
//	reference.Match("IN2512-0498", "IN25120498")    // true
package reference

import (
	"regexp"
	"strings"
)

var (
	dashedForm  = regexp.MustCompile(`^(?:IN|FAC)\d{4}-\d{3,4}$`)
	compactForm = regexp.MustCompile(`^(IN|FAC)(\d{4})(\d{3,4})$`)

	separators = strings.NewReplacer(" ", "", "-", "", ".", "", "_", "")
)

// Normalize returns the canonical form of ref: upper-cased and trimmed, with
// the dash re-inserted when ref is a concatenated IN/FAC reference.
func Normalize(ref string) string {
	r := strings.ToUpper(strings.TrimSpace(ref))
	if r == "" {
		return ""
	}

	if dashedForm.MatchString(r) {
		return r
	}

	if m := compactForm.FindStringSubmatch(r); m != nil {
		return m[1] + m[2] + "-" + m[3]
	}

	return r
}

// Clean upper-cases ref and strips spaces, dashes, dots and underscores.
func Clean(ref string) string {
	if ref == "" {
		return ""
	}
	return separators.Replace(strings.ToUpper(ref))
}

// Match reports whether two references designate the same invoice. It
// compares canonical forms, then separator-free forms, then checks whether
// one separator-free form contains the other.
func Match(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}

	if Normalize(a) == Normalize(b) {
		return true
	}

	ca, cb := Clean(a), Clean(b)
	if ca == "" || cb == "" {
		return false
	}
	if ca == cb {
		return true
	}

	return strings.Contains(ca, cb) || strings.Contains(cb, ca)
}

// SameSuffix reports whether the separator-free forms of a and b share their
// last four characters. Both must be at least four characters long.
func SameSuffix(a, b string) bool {
	ca, cb := Clean(a), Clean(b)
	if len(ca) < 4 || len(cb) < 4 {
		return false
	}
	return ca[len(ca)-4:] == cb[len(cb)-4:]
}

// Suffix returns the last four characters of the separator-free form of ref,
// or the whole form when it is shorter.
func Suffix(ref string) string {
	c := Clean(ref)
	if len(c) <= 4 {
		return c
	}
	return c[len(c)-4:]
}
