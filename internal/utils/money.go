package utils

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// NumberFormat selects how separators in an amount are read.
type NumberFormat int

const (
	FormatAuto NumberFormat = iota
	// FormatEuropean reads "1.234,56".
	FormatEuropean
	// FormatUS reads "1,234.56".
	FormatUS
)

var errEmptyAmount = errors.New("empty amount")

// ParseAmount parses a money string guessing the separator convention.
func ParseAmount(s string) (decimal.Decimal, error) {
	return ParseAmountFormat(s, FormatAuto)
}

// ParseAmountFormat parses a money string such as "-1.234,56 €" or "(12.50)".
func ParseAmountFormat(s string, format NumberFormat) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errEmptyAmount
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' || r == '−':
			negative = !negative
		}
	}
	num := b.String()
	if num == "" {
		return decimal.Zero, errEmptyAmount
	}

	if format == FormatAuto {
		format = GuessNumberFormat(num)
	}
	switch format {
	case FormatEuropean:
		num = strings.ReplaceAll(num, ".", "")
		num = strings.ReplaceAll(num, ",", ".")
	default:
		num = strings.ReplaceAll(num, ",", "")
	}

	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// GuessNumberFormat decides the separator convention of one value.
func GuessNumberFormat(num string) NumberFormat {
	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			return FormatEuropean
		}
		return FormatUS
	case lastComma >= 0:
		// "12,50" is a decimal comma, "1,234" a thousands separator.
		if strings.Count(num, ",") == 1 && len(num)-lastComma-1 != 3 {
			return FormatEuropean
		}
		return FormatUS
	case lastDot >= 0:
		if strings.Count(num, ".") > 1 {
			return FormatEuropean
		}
		return FormatUS
	}
	return FormatUS
}

// FormatFixed renders an amount rounded to two decimals.
func FormatFixed(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
