package entity

// MatchMethod names the strategy that produced a match.
type MatchMethod string

const (
	MatchExactCode     MatchMethod = "exact-code"
	MatchFuzzyAddress  MatchMethod = "fuzzy-address"
	MatchMaskedAccount MatchMethod = "masked-account"
	MatchNone          MatchMethod = "none"
)

// MatchResult is the outcome of resolving a document to a property or account.
type MatchResult struct {
	EntityID   string      `json:"entity_id,omitempty"`
	EntityKind string      `json:"entity_kind,omitempty"`
	Confidence float64     `json:"confidence"`
	Method     MatchMethod `json:"method"`
	SourceText string      `json:"source_text,omitempty"`
}

// Matched is true when an entity was resolved.
func (m MatchResult) Matched() bool {
	return m.EntityID != "" && m.Method != MatchNone
}

// NoMatch is the valid empty outcome.
func NoMatch() MatchResult {
	return MatchResult{Method: MatchNone}
}

// Property is a physical property expenses can be booked against.
type Property struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	PostalCode  string   `json:"postal_code,omitempty"`
	SupplyCodes []string `json:"supply_codes,omitempty"`
}

// Account is a bank account movements are booked against.
type Account struct {
	ID            string `json:"id"`
	Alias         string `json:"alias"`
	IBAN          string `json:"iban,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}
