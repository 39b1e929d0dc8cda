package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ColumnMapping maps semantic roles to column indexes. -1 means absent.
type ColumnMapping struct {
	HeaderRow   int `json:"header_row"`
	Date        int `json:"date"`
	Description int `json:"description"`
	Amount      int `json:"amount"`
	Balance     int `json:"balance"`
	Credit      int `json:"credit"`
	Debit       int `json:"debit"`
}

// EmptyMapping returns a mapping with every role unassigned.
func EmptyMapping() ColumnMapping {
	return ColumnMapping{HeaderRow: -1, Date: -1, Description: -1, Amount: -1, Balance: -1, Credit: -1, Debit: -1}
}

// HasAmount is true when either a signed amount or a credit/debit pair is mapped.
func (m ColumnMapping) HasAmount() bool {
	return m.Amount >= 0 || (m.Credit >= 0 && m.Debit >= 0)
}

// Complete is true when every required role is mapped.
func (m ColumnMapping) Complete() bool {
	return m.Date >= 0 && m.Description >= 0 && m.HasAmount()
}

// Transaction is one normalized statement row.
type Transaction struct {
	Row         int                 `json:"row"`
	Date        string              `json:"date"`
	Description string              `json:"description"`
	Amount      decimal.Decimal     `json:"amount"`
	Direction   Direction           `json:"direction"`
	Balance     decimal.NullDecimal `json:"balance"`
}

// RowCounts are the per-batch import tallies.
type RowCounts struct {
	Total      int `json:"total"`
	Imported   int `json:"imported"`
	Skipped    int `json:"skipped"`
	Duplicated int `json:"duplicated"`
	Errored    int `json:"errored"`
}

// ImportBatch is the audit record of one statement import.
type ImportBatch struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	Filename      string        `json:"filename"`
	Bank          string        `json:"bank,omitempty"`
	Format        string        `json:"format"`
	Encoding      string        `json:"encoding,omitempty"`
	Separator     string        `json:"separator,omitempty"`
	IBAN          string        `json:"iban,omitempty"`
	AccountNumber string        `json:"account_number,omitempty"`
	AccountID     string        `json:"account_id,omitempty"`
	DateFrom      string        `json:"date_from,omitempty"`
	DateTo        string        `json:"date_to,omitempty"`
	Counts        RowCounts     `json:"counts"`
	ContentHash   string        `json:"content_hash"`
	Mapping       ColumnMapping `json:"mapping"`
	CreatedAt     time.Time     `json:"created_at"`
}
