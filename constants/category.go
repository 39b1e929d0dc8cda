package constants

import (
	"strings"
)

// DocType is the document type declared on submission.
type DocType string

const (
	DocTypeInvoice       DocType = "invoice"
	DocTypeSEPAReceipt   DocType = "sepa_receipt"
	DocTypeBankStatement DocType = "bank_statement"
	DocTypeContract      DocType = "contract"
	DocTypeUnknown       DocType = "unknown"
)

// ParseDocType maps free text to a declared type, defaulting to unknown.
func ParseDocType(input string) DocType {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "invoice", "factura":
		return DocTypeInvoice
	case "sepa_receipt", "sepa", "receipt", "recibo":
		return DocTypeSEPAReceipt
	case "bank_statement", "statement", "extracto":
		return DocTypeBankStatement
	case "contract", "contrato":
		return DocTypeContract
	default:
		return DocTypeUnknown
	}
}

// Subtype is the classifier output. Each one has a fixed downstream path.
type Subtype string

const (
	SubtypeUtilitySupply  Subtype = "utility-supply"
	SubtypeHomeReform     Subtype = "home-reform"
	SubtypePlainReceipt   Subtype = "plain-receipt"
	SubtypeGenericInvoice Subtype = "generic-invoice"
	SubtypeBankStatement  Subtype = "bank-statement"
	SubtypeOther          Subtype = "other"
)

var allSubtypes = []Subtype{
	SubtypeUtilitySupply,
	SubtypeHomeReform,
	SubtypePlainReceipt,
	SubtypeGenericInvoice,
	SubtypeBankStatement,
	SubtypeOther,
}

// Subtypes returns all subtypes in classifier tie-break order.
func Subtypes() []Subtype {
	out := make([]Subtype, len(allSubtypes))
	copy(out, allSubtypes)
	return out
}

// FiscalCategory is one bucket of a home-reform split.
type FiscalCategory string

const (
	FiscalImprovement        FiscalCategory = "improvement"
	FiscalFurniture          FiscalCategory = "furniture"
	FiscalRepairConservation FiscalCategory = "repair-conservation"
)

var allFiscalCategories = []FiscalCategory{
	FiscalImprovement,
	FiscalFurniture,
	FiscalRepairConservation,
}

func FiscalCategoriesAsStrings() []string {
	result := make([]string, len(allFiscalCategories))
	for i, c := range allFiscalCategories {
		result[i] = string(c)
	}
	return result
}

// CanonicalizeFiscal resolves user input to a fiscal category.
func CanonicalizeFiscal(input string) (FiscalCategory, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]FiscalCategory{
		"mejora":                  FiscalImprovement,
		"ampliacion":              FiscalImprovement,
		"mobiliario":              FiscalFurniture,
		"muebles":                 FiscalFurniture,
		"enseres":                 FiscalFurniture,
		"reparacion":              FiscalRepairConservation,
		"conservacion":            FiscalRepairConservation,
		"repair":                  FiscalRepairConservation,
		"repair_conservation":     FiscalRepairConservation,
		"reparacion-conservacion": FiscalRepairConservation,
	}
	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allFiscalCategories {
		if normalized == string(cat) {
			return cat, true
		}
	}
	return "", false
}
