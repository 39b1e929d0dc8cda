// Package validation checks extracted fields against per-type completeness
// rules and scores how much the extraction can be trusted.
package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

// Field names used in Missing, FieldConfidence and OCR confidence maps.
const (
	FieldSupplierName   = "supplier_name"
	FieldSupplierTaxID  = "supplier_tax_id"
	FieldTotalAmount    = "total_amount"
	FieldNetAmount      = "net_amount"
	FieldTaxAmount      = "tax_amount"
	FieldIssueDate      = "issue_date"
	FieldDueDate        = "due_date"
	FieldServiceAddress = "service_address"
	FieldAccountMasked  = "account_masked"
)

// Tier buckets the global confidence.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// TierFor maps a 0-100 score to its tier.
func TierFor(score float64) Tier {
	switch {
	case score >= 85:
		return TierHigh
	case score >= 70:
		return TierMedium
	default:
		return TierLow
	}
}

// ReconciliationTolerance is the allowed gap between net+tax and total.
var ReconciliationTolerance = decimal.RequireFromString("0.02")

// Result is the outcome of Validate.
type Result struct {
	IsValid          bool               `json:"is_valid"`
	Missing          []string           `json:"missing,omitempty"`
	Warnings         []string           `json:"warnings,omitempty"`
	FieldConfidence  map[string]float64 `json:"field_confidence"`
	GlobalConfidence float64            `json:"global_confidence"`
	Tier             Tier               `json:"tier"`
}

// Reason is a human-readable summary of the missing fields.
func (r Result) Reason() string {
	if len(r.Missing) == 0 {
		return ""
	}
	return "missing required fields: " + strings.Join(r.Missing, ", ")
}

// RequiredFields lists the blocking fields for a declared type.
func RequiredFields(docType constants.DocType) []string {
	if docType == constants.DocTypeSEPAReceipt {
		return []string{FieldTotalAmount, FieldSupplierName}
	}
	return []string{FieldTotalAmount, FieldSupplierName, FieldIssueDate}
}

// Validator scores extracted fields. The zero value is ready to use.
type Validator struct {
	Now func() time.Time
}

// Validate applies the default validator.
func Validate(docType constants.DocType, fields entity.ExtractedFields, native map[string]float64) Result {
	return Validator{}.Validate(docType, fields, native)
}

// Validate checks completeness for docType and computes per-field and
// global confidence. native holds OCR confidences in [0,1] keyed by field.
func (v Validator) Validate(docType constants.DocType, fields entity.ExtractedFields, native map[string]float64) Result {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}

	res := Result{FieldConfidence: map[string]float64{}}

	for _, name := range RequiredFields(docType) {
		if !present(name, fields) {
			res.Missing = append(res.Missing, name)
		}
	}
	res.IsValid = len(res.Missing) == 0

	scored := append([]string(nil), RequiredFields(docType)...)
	for _, name := range []string{FieldSupplierTaxID, FieldNetAmount, FieldTaxAmount, FieldDueDate, FieldServiceAddress, FieldAccountMasked} {
		if present(name, fields) {
			scored = append(scored, name)
		}
	}

	var sum float64
	for _, name := range scored {
		score := 0.0
		if present(name, fields) {
			if c, ok := nativeScore(native, name); ok {
				score = c
			} else {
				score = plausibility(name, fields, now())
			}
		}
		res.FieldConfidence[name] = score
		sum += score
	}
	if len(scored) > 0 {
		res.GlobalConfidence = math.Round(sum/float64(len(scored))*100) / 100
	}
	res.Tier = TierFor(res.GlobalConfidence)
	res.Warnings = warnings(fields)
	return res
}

func present(name string, f entity.ExtractedFields) bool {
	switch name {
	case FieldSupplierName:
		return strings.TrimSpace(f.SupplierName) != ""
	case FieldSupplierTaxID:
		return strings.TrimSpace(f.SupplierTaxID) != ""
	case FieldTotalAmount:
		return f.HasTotal()
	case FieldNetAmount:
		return f.NetAmount.Valid
	case FieldTaxAmount:
		return f.TaxAmount.Valid
	case FieldIssueDate:
		return utils.CanonicalDate(f.IssueDate) != ""
	case FieldDueDate:
		return strings.TrimSpace(f.DueDate) != ""
	case FieldServiceAddress:
		return strings.TrimSpace(f.ServiceAddress) != ""
	case FieldAccountMasked:
		return strings.TrimSpace(f.AccountMasked) != ""
	}
	return false
}

func nativeScore(native map[string]float64, name string) (float64, bool) {
	c, ok := native[name]
	if !ok || c < 0 {
		return 0, false
	}
	if c <= 1 {
		c *= 100
	}
	return math.Min(c, 100), true
}

func warnings(f entity.ExtractedFields) []string {
	var out []string
	if f.NetAmount.Valid && f.TaxAmount.Valid && f.TotalAmount.Valid {
		sum := f.NetAmount.Decimal.Add(f.TaxAmount.Decimal)
		if sum.Sub(f.TotalAmount.Decimal).Abs().GreaterThan(ReconciliationTolerance) {
			out = append(out, fmt.Sprintf("amount mismatch: net+tax=%s total=%s",
				utils.FormatFixed(sum), utils.FormatFixed(f.TotalAmount.Decimal)))
		}
	}
	issue, okIssue := utils.ParseDate(f.IssueDate)
	due, okDue := utils.ParseDate(f.DueDate)
	if okIssue && okDue && due.Before(issue) {
		out = append(out, "due date precedes issue date")
	}
	if strings.TrimSpace(f.DueDate) != "" && !okDue {
		out = append(out, "unparsable due date: "+f.DueDate)
	}
	return out
}
