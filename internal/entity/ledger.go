package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/finance-intake/constants"
)

// Scope says who an expense belongs to.
type Scope string

const (
	ScopeProperty Scope = "property"
	ScopePersonal Scope = "personal"
)

// Expense is a ledger expense record.
type Expense struct {
	ID            string                                       `json:"id"`
	Scope         Scope                                        `json:"scope"`
	PropertyID    string                                       `json:"property_id,omitempty"`
	SupplierName  string                                       `json:"supplier_name"`
	SupplierTaxID string                                       `json:"supplier_tax_id,omitempty"`
	IssueDate     string                                       `json:"issue_date,omitempty"`
	DueDate       string                                       `json:"due_date,omitempty"`
	Total         decimal.Decimal                              `json:"total"`
	Currency      string                                       `json:"currency"`
	Subtype       constants.Subtype                            `json:"subtype"`
	FiscalSplit   map[constants.FiscalCategory]decimal.Decimal `json:"fiscal_split,omitempty"`
	DocumentID    string                                       `json:"document_id"`
	CreatedAt     time.Time                                    `json:"created_at"`
}

// Direction is the sign of a movement.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// DirectionOf derives the direction from an amount sign.
func DirectionOf(amount decimal.Decimal) Direction {
	if amount.IsNegative() {
		return DirectionDebit
	}
	return DirectionCredit
}

// Movement is a treasury movement on an account.
type Movement struct {
	ID          string              `json:"id"`
	AccountID   string              `json:"account_id,omitempty"`
	Date        string              `json:"date"`
	Description string              `json:"description"`
	Amount      decimal.Decimal     `json:"amount"`
	Direction   Direction           `json:"direction"`
	Balance     decimal.NullDecimal `json:"balance"`
	Currency    string              `json:"currency"`
	DedupeKey   string              `json:"dedupe_key,omitempty"`
	BatchID     string              `json:"batch_id,omitempty"`
	DocumentID  string              `json:"document_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}
