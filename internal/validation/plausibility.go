package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

var (
	reNIF = regexp.MustCompile(`^[0-9]{8}[A-Z]$`)
	reNIE = regexp.MustCompile(`^[XYZ][0-9]{7}[A-Z]$`)
	reCIF = regexp.MustCompile(`^[ABCDEFGHJNPQRSUVW][0-9]{7}[0-9A-J]$`)

	maxPlausibleTotal = decimal.NewFromInt(1_000_000)
)

// plausibility estimates a 0-100 confidence from the value alone, used
// when OCR did not report one.
func plausibility(name string, f entity.ExtractedFields, now time.Time) float64 {
	switch name {
	case FieldSupplierName:
		return nameScore(f.SupplierName)
	case FieldSupplierTaxID:
		return taxIDScore(f.SupplierTaxID)
	case FieldTotalAmount:
		if !f.TotalAmount.Valid {
			return 0
		}
		d := f.TotalAmount.Decimal
		switch {
		case !d.IsPositive():
			return 20
		case d.GreaterThan(maxPlausibleTotal):
			return 60
		case d.Exponent() < -2:
			return 75
		default:
			return 92
		}
	case FieldNetAmount, FieldTaxAmount:
		return 85
	case FieldIssueDate:
		return dateScore(f.IssueDate, now, false)
	case FieldDueDate:
		return dateScore(f.DueDate, now, true)
	case FieldServiceAddress:
		return addressScore(f.ServiceAddress)
	case FieldAccountMasked:
		return accountScore(f.AccountMasked)
	}
	return 50
}

func nameScore(s string) float64 {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	switch {
	case letters == 0:
		return 10
	case letters >= 3 && len(s) <= 120:
		return 90
	default:
		return 55
	}
}

func taxIDScore(s string) float64 {
	id := strings.TrimPrefix(utils.AlnumUpper(s), "ES")
	switch {
	case reNIF.MatchString(id), reNIE.MatchString(id), reCIF.MatchString(id):
		return 95
	case len(id) >= 8 && len(id) <= 14:
		return 70
	default:
		return 40
	}
}

func dateScore(s string, now time.Time, future bool) float64 {
	t, ok := utils.ParseDate(s)
	if !ok {
		return 20
	}
	lo := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	hi := now.AddDate(0, 0, 1)
	if future {
		hi = now.AddDate(2, 0, 0)
	}
	if t.Before(lo) || t.After(hi) {
		return 50
	}
	return 90
}

func addressScore(s string) float64 {
	tokens := utils.Tokens(s)
	hasDigit := strings.IndexFunc(s, unicode.IsDigit) >= 0
	if len(tokens) >= 3 && hasDigit {
		return 85
	}
	return 60
}

func accountScore(s string) float64 {
	if utils.ValidIBAN(s) {
		return 95
	}
	if utils.LastDigits(s, 4) != "" {
		return 80
	}
	return 50
}
