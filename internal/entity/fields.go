package entity

import (
	"github.com/shopspring/decimal"
)

// ExtractedFields is the typed field set returned by OCR. Optional values
// are empty strings or invalid NullDecimals.
type ExtractedFields struct {
	SupplierName   string              `json:"supplier_name,omitempty"`
	SupplierTaxID  string              `json:"supplier_tax_id,omitempty"`
	NetAmount      decimal.NullDecimal `json:"net_amount"`
	TaxAmount      decimal.NullDecimal `json:"tax_amount"`
	TotalAmount    decimal.NullDecimal `json:"total_amount"`
	Currency       string              `json:"currency,omitempty"`
	IssueDate      string              `json:"issue_date,omitempty"`
	DueDate        string              `json:"due_date,omitempty"`
	ServiceAddress string              `json:"service_address,omitempty"`
	AccountMasked  string              `json:"account_masked,omitempty"`
	LineItems      []LineItem          `json:"line_items,omitempty"`

	Utility *UtilityDetails `json:"utility,omitempty"`
	SEPA    *SEPADetails    `json:"sepa,omitempty"`
}

// LineItem is one free-form invoice line.
type LineItem struct {
	Description string              `json:"description"`
	Amount      decimal.NullDecimal `json:"amount"`
}

// UtilityDetails carries utility-bill specific fields.
type UtilityDetails struct {
	SupplyCode     string              `json:"supply_code,omitempty"`
	PeriodStart    string              `json:"period_start,omitempty"`
	PeriodEnd      string              `json:"period_end,omitempty"`
	ConsumptionKWh decimal.NullDecimal `json:"consumption_kwh"`
}

// SEPADetails carries direct-debit receipt fields.
type SEPADetails struct {
	MandateReference string `json:"mandate_reference,omitempty"`
	CreditorID       string `json:"creditor_id,omitempty"`
}

// HasTotal is true when a strictly positive total was extracted.
func (f ExtractedFields) HasTotal() bool {
	return f.TotalAmount.Valid && f.TotalAmount.Decimal.IsPositive()
}

// Clone deep-copies the slices and detail blocks.
func (f ExtractedFields) Clone() ExtractedFields {
	c := f
	c.LineItems = append([]LineItem(nil), f.LineItems...)
	if f.Utility != nil {
		u := *f.Utility
		c.Utility = &u
	}
	if f.SEPA != nil {
		s := *f.SEPA
		c.SEPA = &s
	}
	return c
}

// FingerprintResult is the normalized business key of a document.
type FingerprintResult struct {
	FileHash          string `json:"file_hash"`
	DocFingerprint    string `json:"doc_fingerprint"`
	NormalizedTotal   string `json:"normalized_total"`
	IssueDate         string `json:"issue_date"`
	SupplierTaxID     string `json:"supplier_tax_id"`
	SupplierNameLower string `json:"supplier_name_lower"`
}
