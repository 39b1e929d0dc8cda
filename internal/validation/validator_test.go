package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
)

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func fixedNow() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func TestValidate_RuleSets(t *testing.T) {
	tests := []struct {
		name        string
		docType     constants.DocType
		fields      entity.ExtractedFields
		wantValid   bool
		wantMissing []string
	}{
		{
			name:    "general complete",
			docType: constants.DocTypeInvoice,
			fields: entity.ExtractedFields{
				SupplierName: "Endesa Energía", TotalAmount: money("42.10"), IssueDate: "2024-05-02",
			},
			wantValid: true,
		},
		{
			name:        "general missing date and supplier",
			docType:     constants.DocTypeInvoice,
			fields:      entity.ExtractedFields{TotalAmount: money("42.10")},
			wantValid:   false,
			wantMissing: []string{FieldSupplierName, FieldIssueDate},
		},
		{
			name:        "zero total is missing",
			docType:     constants.DocTypeUnknown,
			fields:      entity.ExtractedFields{SupplierName: "Acme", TotalAmount: money("0"), IssueDate: "2024-05-02"},
			wantValid:   false,
			wantMissing: []string{FieldTotalAmount},
		},
		{
			name:      "sepa does not need a date",
			docType:   constants.DocTypeSEPAReceipt,
			fields:    entity.ExtractedFields{SupplierName: "Comunidad de Propietarios", TotalAmount: money("60")},
			wantValid: true,
		},
		{
			name:        "unparsable issue date counts as missing",
			docType:     constants.DocTypeInvoice,
			fields:      entity.ExtractedFields{SupplierName: "Acme", TotalAmount: money("10"), IssueDate: "soon"},
			wantValid:   false,
			wantMissing: []string{FieldIssueDate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validator{Now: fixedNow}.Validate(tt.docType, tt.fields, nil)
			assert.Equal(t, tt.wantValid, res.IsValid)
			assert.Equal(t, tt.wantMissing, res.Missing)
		})
	}
}

func TestValidate_ReconciliationIsNonBlocking(t *testing.T) {
	fields := entity.ExtractedFields{
		SupplierName: "Reformas López",
		TotalAmount:  money("100.00"),
		NetAmount:    money("60.00"),
		TaxAmount:    money("30.00"),
		IssueDate:    "2024-04-10",
	}
	res := Validator{Now: fixedNow}.Validate(constants.DocTypeInvoice, fields, nil)

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Missing)
	if assert.Len(t, res.Warnings, 1) {
		assert.Contains(t, res.Warnings[0], "net+tax=90.00 total=100.00")
	}
}

func TestValidate_ReconciliationWithinTolerance(t *testing.T) {
	fields := entity.ExtractedFields{
		SupplierName: "Acme",
		TotalAmount:  money("121.00"),
		NetAmount:    money("100.00"),
		TaxAmount:    money("20.99"),
		IssueDate:    "2024-04-10",
	}
	res := Validator{Now: fixedNow}.Validate(constants.DocTypeInvoice, fields, nil)
	assert.Empty(t, res.Warnings)
}

func TestValidate_Confidence(t *testing.T) {
	fields := entity.ExtractedFields{
		SupplierName: "Acme Servicios", TotalAmount: money("10.00"), IssueDate: "2024-04-10",
	}

	t.Run("native confidence wins", func(t *testing.T) {
		native := map[string]float64{FieldSupplierName: 0.5, FieldTotalAmount: 0.6, FieldIssueDate: 0.7}
		res := Validator{Now: fixedNow}.Validate(constants.DocTypeInvoice, fields, native)
		assert.InDelta(t, 60.0, res.GlobalConfidence, 0.001)
		assert.Equal(t, TierLow, res.Tier)
		assert.InDelta(t, 50.0, res.FieldConfidence[FieldSupplierName], 0.001)
	})

	t.Run("plausibility when native is absent", func(t *testing.T) {
		res := Validator{Now: fixedNow}.Validate(constants.DocTypeInvoice, fields, nil)
		assert.InDelta(t, (90.0+92.0+90.0)/3, res.GlobalConfidence, 0.01)
		assert.Equal(t, TierHigh, res.Tier)
	})

	t.Run("missing required fields score zero", func(t *testing.T) {
		res := Validator{Now: fixedNow}.Validate(constants.DocTypeInvoice, entity.ExtractedFields{SupplierName: "Acme"}, nil)
		assert.Equal(t, 0.0, res.FieldConfidence[FieldTotalAmount])
		assert.Equal(t, TierLow, res.Tier)
	})
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierHigh, TierFor(85))
	assert.Equal(t, TierMedium, TierFor(84.99))
	assert.Equal(t, TierMedium, TierFor(70))
	assert.Equal(t, TierLow, TierFor(69.9))
}

func TestValidate_DueDateWarnings(t *testing.T) {
	fields := entity.ExtractedFields{
		SupplierName: "Acme", TotalAmount: money("10"), IssueDate: "2024-04-10", DueDate: "2024-04-01",
	}
	res := Validator{Now: fixedNow}.Validate(constants.DocTypeInvoice, fields, nil)
	assert.True(t, res.IsValid)
	assert.Contains(t, res.Warnings, "due date precedes issue date")
}

func TestResult_Reason(t *testing.T) {
	assert.Equal(t, "missing required fields: supplier_name, issue_date",
		Result{Missing: []string{FieldSupplierName, FieldIssueDate}}.Reason())
	assert.Empty(t, Result{}.Reason())
}
