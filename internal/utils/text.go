package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks and folds compatibility forms
// ("Castellón" -> "Castellon", "3º" -> "3o").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// FoldText lower-cases, strips diacritics and collapses every run of
// non-alphanumeric characters into a single space.
func FoldText(s string) string {
	s = strings.ToLower(StripDiacritics(s))
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Tokens splits folded text on spaces.
func Tokens(s string) []string {
	return strings.Fields(FoldText(s))
}

// AlnumUpper keeps letters and digits only, upper-cased.
func AlnumUpper(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(StripDiacritics(s)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ContainsWord reports whether folded text contains phrase on word boundaries.
func ContainsWord(folded, phrase string) bool {
	if phrase == "" {
		return false
	}
	hay := " " + folded + " "
	return strings.Contains(hay, " "+phrase+" ")
}

// Truncate shortens s to n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
