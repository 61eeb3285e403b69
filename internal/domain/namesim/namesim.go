// Package namesim scores how likely two free-text party names designate the
// same person or company. Scores run from 0 to 100 and tolerate accents,
// punctuation and first-name/last-name inversion ("ORIO ILTUD" vs
// "Iltud Orio" scores 95).
package namesim

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultConfident is the similarity at which two names are treated as
	// the same party.
	DefaultConfident = 70.0
	// DefaultWeak is the similarity at which two names are treated as
	// probably related.
	DefaultWeak = 50.0
)

var accents = map[rune]rune{
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'à': 'a', 'â': 'a', 'ä': 'a',
	'î': 'i', 'ï': 'i',
	'ô': 'o', 'ö': 'o',
	'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n',
}

// Normalize lower-cases name, folds common accented letters to their base
// letter, drops everything that is not a-z, 0-9 or whitespace and collapses
// runs of whitespace.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range strings.ToLower(name) {
		if base, ok := accents[r]; ok {
			r = base
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Similarity returns a 0-100 score for two party names:
//
//	100  identical after normalization
//	 95  same words in a different order
//	 70+ one name's words are a subset of the other's (max(70, jaccard*100))
//	<80  some words shared (jaccard*80)
//	 60  one name is a prefix of the other
//	 50  a word of 4+ letters from a appears inside b
//	  0  otherwise
//
// A name that normalizes to nothing, such as "!!!", scores 0 against
// anything; it is never a prefix.
func Similarity(a, b string) float64 {
	n1, n2 := Normalize(a), Normalize(b)
	if n1 == "" || n2 == "" {
		return 0
	}

	if n1 == n2 {
		return 100
	}

	words1, words2 := wordSet(n1), wordSet(n2)
	if sameSet(words1, words2) {
		return 95
	}

	shared := 0
	for w := range words1 {
		if words2[w] {
			shared++
		}
	}
	union := len(words1) + len(words2) - shared
	jaccard := float64(shared) / float64(union)

	if shared == len(words1) || shared == len(words2) {
		return max(70, jaccard*100)
	}
	if shared > 0 {
		return jaccard * 80
	}

	if strings.HasPrefix(n1, n2) || strings.HasPrefix(n2, n1) {
		return 60
	}

	for w := range words1 {
		if utf8.RuneCountInString(w) >= 4 && strings.Contains(n2, w) {
			return 50
		}
	}

	return 0
}

// Equivalent reports whether a and b name the same party, regardless of
// word order, using the DefaultConfident threshold.
func Equivalent(a, b string) bool {
	return EquivalentAt(a, b, DefaultConfident)
}

// EquivalentAt is Equivalent with an explicit threshold.
func EquivalentAt(a, b string, threshold float64) bool {
	return Similarity(a, b) >= threshold
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for w := range a {
		if !b[w] {
			return false
		}
	}
	return true
}
