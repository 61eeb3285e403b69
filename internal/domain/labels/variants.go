package labels

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SearchVariants expands an extracted counterparty name into the spellings
// worth sending to the ERP party search, most likely first: the name as
// given, title-cased, word order reversed (both casings), then each word of
// three or more characters (both casings). Duplicates are dropped
// case-insensitively, keeping the first spelling, so "ORIO ILTUD" yields
// ORIO ILTUD, ILTUD ORIO, ORIO, ILTUD.
func SearchVariants(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	variants := []string{name, title(name)}

	parts := strings.Fields(name)
	if len(parts) >= 2 {
		reversed := make([]string, len(parts))
		for i, p := range parts {
			reversed[len(parts)-1-i] = p
		}
		r := strings.Join(reversed, " ")
		variants = append(variants, r, title(r))

		for _, p := range parts {
			if utf8.RuneCountInString(p) >= minNameLength {
				variants = append(variants, p, title(p))
			}
		}
	}

	seen := make(map[string]bool, len(variants))
	unique := variants[:0]
	for _, v := range variants {
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, v)
	}
	return unique
}

// A Caser is stateful, so each call gets its own.
func title(s string) string {
	return cases.Title(language.Und).String(s)
}
