// Package matcher resolves documents to the property or bank account they
// belong to.
package matcher

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

const (
	// ExactCodeConfidence is reported for supply code and full IBAN hits.
	ExactCodeConfidence = 0.95
	// MaskedAccountConfidence is reported when only trailing digits agree.
	MaskedAccountConfidence = 0.7
	// DefaultThreshold is the minimum fuzzy address similarity, exclusive.
	DefaultThreshold = 0.6
)

// Spanish CUPS: ES + 16 digits + 2 control letters, optional border point suffix.
var reSupplyCode = regexp.MustCompile(`ES\s?(?:[0-9]{4}\s?){4}[A-Z]{2}(?:\s?[0-9][A-Z])?`)

// PropertyInput is what the matcher reads from a document.
type PropertyInput struct {
	Fields entity.ExtractedFields
	Text   string
}

// Matcher runs the exact code strategy, then fuzzy address matching.
type Matcher struct {
	logger    *slog.Logger
	threshold float64
}

func New(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger, threshold: DefaultThreshold}
}

// MatchProperty returns the owning property or a MatchNone result.
// A miss is a valid outcome, not an error.
func (m *Matcher) MatchProperty(in PropertyInput, properties []entity.Property) entity.MatchResult {
	if len(properties) == 0 {
		return entity.NoMatch()
	}

	if code := ExtractSupplyCode(supplyCodeSources(in)...); code != "" {
		for _, p := range properties {
			for _, pc := range p.SupplyCodes {
				if sameSupplyPoint(code, pc) {
					m.logger.Debug("matcher.exact_code.hit", "property_id", p.ID, "code", code)
					return entity.MatchResult{
						EntityID:   p.ID,
						EntityKind: "property",
						Confidence: ExactCodeConfidence,
						Method:     entity.MatchExactCode,
						SourceText: code,
					}
				}
			}
		}
		m.logger.Debug("matcher.exact_code.unknown", "code", code)
	}

	addr := strings.TrimSpace(in.Fields.ServiceAddress)
	if addr == "" {
		return entity.NoMatch()
	}
	target := ParseAddress(addr)

	best := entity.NoMatch()
	bestScore := 0.0
	for _, p := range properties {
		candidate := p.Address
		if p.PostalCode != "" && !strings.Contains(candidate, p.PostalCode) {
			candidate += " " + p.PostalCode
		}
		score := Similarity(target, ParseAddress(candidate))
		if score > m.threshold && score > bestScore {
			bestScore = score
			best = entity.MatchResult{
				EntityID:   p.ID,
				EntityKind: "property",
				Confidence: score,
				Method:     entity.MatchFuzzyAddress,
				SourceText: addr,
			}
		}
	}
	if best.Matched() {
		m.logger.Debug("matcher.fuzzy_address.hit", "property_id", best.EntityID, "score", bestScore)
	}
	return best
}

// MatchAccount resolves an IBAN, raw account number or masked identifier.
func (m *Matcher) MatchAccount(identifier string, accounts []entity.Account) entity.MatchResult {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || len(accounts) == 0 {
		return entity.NoMatch()
	}

	norm := utils.NormalizeIBAN(identifier)
	for _, a := range accounts {
		iban := utils.NormalizeIBAN(a.IBAN)
		number := utils.NormalizeIBAN(a.AccountNumber)
		if number == "" && iban != "" {
			number = utils.AccountFromIBAN(iban)
		}
		if (iban != "" && norm == iban) || (number != "" && (norm == number || utils.AccountFromIBAN(norm) == number)) {
			return entity.MatchResult{
				EntityID:   a.ID,
				EntityKind: "account",
				Confidence: ExactCodeConfidence,
				Method:     entity.MatchExactCode,
				SourceText: identifier,
			}
		}
	}

	last4 := utils.LastDigits(identifier, 4)
	if last4 == "" {
		return entity.NoMatch()
	}
	var hit *entity.Account
	for i := range accounts {
		a := &accounts[i]
		ref := a.AccountNumber
		if ref == "" {
			ref = a.IBAN
		}
		if utils.LastDigits(ref, 4) != last4 {
			continue
		}
		if hit != nil {
			m.logger.Debug("matcher.masked_account.ambiguous", "last4", last4)
			return entity.NoMatch()
		}
		hit = a
	}
	if hit == nil {
		return entity.NoMatch()
	}
	return entity.MatchResult{
		EntityID:   hit.ID,
		EntityKind: "account",
		Confidence: MaskedAccountConfidence,
		Method:     entity.MatchMaskedAccount,
		SourceText: identifier,
	}
}

// ExtractSupplyCode returns the first supply code found in texts, without spaces.
func ExtractSupplyCode(texts ...string) string {
	for _, t := range texts {
		if t == "" {
			continue
		}
		if found := reSupplyCode.FindString(strings.ToUpper(t)); found != "" {
			return strings.ReplaceAll(found, " ", "")
		}
	}
	return ""
}

func supplyCodeSources(in PropertyInput) []string {
	var out []string
	if in.Fields.Utility != nil {
		out = append(out, in.Fields.Utility.SupplyCode)
	}
	return append(out, in.Fields.ServiceAddress, in.Text)
}

// sameSupplyPoint compares the 20-character core and ignores the suffix.
func sameSupplyPoint(a, b string) bool {
	a = strings.ReplaceAll(strings.ToUpper(a), " ", "")
	b = strings.ReplaceAll(strings.ToUpper(b), " ", "")
	if len(a) < 20 || len(b) < 20 {
		return false
	}
	return a[:20] == b[:20]
}
