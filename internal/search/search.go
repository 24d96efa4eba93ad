// Package search implements the loose text matching of the list views.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower cases s and strips combining marks, so "José" and "jose" match.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Matcher tests folded fields against one folded term.
type Matcher struct {
	term string
}

func NewMatcher(term string) Matcher {
	return Matcher{term: Fold(term)}
}

// Any reports whether one of fields contains the term. An empty term matches
// everything.
func (m Matcher) Any(fields ...string) bool {
	if m.term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(Fold(f), m.term) {
			return true
		}
	}
	return false
}

// DisplayDate renders YYYY-MM-DD as DD/MM/YYYY and leaves anything else alone.
func DisplayDate(iso string) string {
	if len(iso) < 10 || iso[4] != '-' || iso[7] != '-' {
		return iso
	}
	return iso[8:10] + "/" + iso[5:7] + "/" + iso[0:4]
}
