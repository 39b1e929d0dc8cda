package utils

import (
	"regexp"
	"strings"
)

var reIBANShape = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)

// NormalizeIBAN strips spaces and dashes and upper-cases.
func NormalizeIBAN(s string) string {
	s = strings.ToUpper(s)
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '.' {
			return -1
		}
		return r
	}, s)
}

// ValidIBAN checks the shape and the ISO 13616 mod-97 checksum.
func ValidIBAN(s string) bool {
	iban := NormalizeIBAN(s)
	if !reIBANShape.MatchString(iban) {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	rem := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			rem = (rem*100 + v) % 97
		default:
			return false
		}
	}
	return rem == 1
}

// AccountFromIBAN drops the country code and check digits.
func AccountFromIBAN(iban string) string {
	iban = NormalizeIBAN(iban)
	if len(iban) <= 4 {
		return ""
	}
	return iban[4:]
}

// LastDigits returns the trailing n digits found in s.
func LastDigits(s string, n int) string {
	var digits []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < n {
		return ""
	}
	return string(digits[len(digits)-n:])
}
