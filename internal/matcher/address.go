package matcher

import (
	"regexp"

	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

// Street-type abbreviations and their canonical words.
var streetTypes = map[string]string{
	"c":      "calle",
	"cl":     "calle",
	"cll":    "calle",
	"av":     "avenida",
	"avd":    "avenida",
	"avda":   "avenida",
	"pza":    "plaza",
	"pl":     "plaza",
	"plz":    "plaza",
	"po":     "paseo",
	"pso":    "paseo",
	"ps":     "paseo",
	"ctra":   "carretera",
	"cra":    "carretera",
	"cmno":   "camino",
	"rda":    "ronda",
	"trav":   "travesia",
	"tr":     "travesia",
	"urb":    "urbanizacion",
	"pje":    "pasaje",
	"st":     "street",
	"ave":    "avenue",
	"rd":     "road",
	"carrer": "calle",
	"rua":    "calle",
}

var stopwords = map[string]struct{}{
	"de": {}, "del": {}, "la": {}, "el": {}, "los": {}, "las": {}, "y": {},
	"n":  {}, "no": {}, "num": {}, "numero": {}, "the": {}, "of": {},
}

var (
	rePostal = regexp.MustCompile(`^[0-9]{5}$`)
	reNumber = regexp.MustCompile(`^[0-9]{1,4}[a-z]?$`)
)

// Address is a normalized address split into weighted components.
type Address struct {
	Tokens     []string
	Number     string
	PostalCode string
	Generic    []string
}

// ParseAddress normalizes raw text: lower-case, no diacritics, canonical
// street types, no stopwords.
func ParseAddress(raw string) Address {
	var a Address
	for _, tok := range utils.Tokens(raw) {
		if canon, ok := streetTypes[tok]; ok {
			tok = canon
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		a.Tokens = append(a.Tokens, tok)
	}

	numberAt, postalAt := -1, -1
	for i, tok := range a.Tokens {
		if postalAt < 0 && rePostal.MatchString(tok) {
			postalAt = i
			a.PostalCode = tok
			continue
		}
		if numberAt < 0 && reNumber.MatchString(tok) {
			numberAt = i
			a.Number = tok
		}
	}
	for i, tok := range a.Tokens {
		if i == numberAt || i == postalAt {
			continue
		}
		a.Generic = append(a.Generic, tok)
	}
	return a
}

// Similarity scores two addresses: generic token overlap weighs 1, a
// matching street number 2, a matching postal code 3, all divided by the
// larger token count and capped at 1.
func Similarity(a, b Address) float64 {
	n := len(a.Tokens)
	if len(b.Tokens) > n {
		n = len(b.Tokens)
	}
	if n == 0 {
		return 0
	}

	other := make(map[string]struct{}, len(b.Generic))
	for _, tok := range b.Generic {
		other[tok] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a.Generic))
	score := 0.0
	for _, tok := range a.Generic {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := other[tok]; ok {
			score++
		}
	}
	if a.Number != "" && a.Number == b.Number {
		score += 2
	}
	if a.PostalCode != "" && a.PostalCode == b.PostalCode {
		score += 3
	}

	s := score / float64(n)
	if s > 1 {
		s = 1
	}
	return s
}

// AddressSimilarity parses and scores two raw addresses.
func AddressSimilarity(a, b string) float64 {
	return Similarity(ParseAddress(a), ParseAddress(b))
}
