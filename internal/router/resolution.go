package router

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
)

// Resolution is a reviewer's decision for a needs_review document.
type Resolution struct {
	Kind       entity.DestinationKind `json:"kind"`
	Scope      entity.Scope           `json:"scope,omitempty"`
	PropertyID string                 `json:"property_id,omitempty"`
	AccountID  string                 `json:"account_id,omitempty"`
	// Total overrides the extracted total when set.
	Total       decimal.NullDecimal                          `json:"total"`
	Description string                                       `json:"description,omitempty"`
	FiscalSplit map[constants.FiscalCategory]decimal.Decimal `json:"fiscal_split,omitempty"`
}

// Commit books a manual resolution. Validation failures wrap
// common.ErrInvalidInput and leave the ledger untouched.
func (r *Router) Commit(ctx context.Context, in Input, res Resolution) (Decision, error) {
	total := in.Fields.TotalAmount
	if res.Total.Valid {
		total = res.Total
	}
	if !total.Valid || !total.Decimal.IsPositive() {
		return Decision{}, common.InvalidInputf("resolution needs a positive total")
	}
	total.Decimal = total.Decimal.Round(2)

	switch res.Kind {
	case entity.DestinationExpense:
		exp := r.expenseFrom(in)
		exp.Total = total.Decimal
		switch res.Scope {
		case entity.ScopeProperty:
			if res.PropertyID == "" {
				return Decision{}, common.InvalidInputf("property scope needs a property id")
			}
			exp.Scope = entity.ScopeProperty
			exp.PropertyID = res.PropertyID
		case entity.ScopePersonal, "":
			exp.Scope = entity.ScopePersonal
		default:
			return Decision{}, common.InvalidInputf("unknown scope %q", res.Scope)
		}
		if len(res.FiscalSplit) > 0 {
			if err := ValidateFiscalSplit(res.FiscalSplit, total.Decimal); err != nil {
				return Decision{}, err
			}
			exp.FiscalSplit = make(map[constants.FiscalCategory]decimal.Decimal, len(res.FiscalSplit))
			for k, v := range res.FiscalSplit {
				exp.FiscalSplit[k] = v.Round(2)
			}
		}
		return r.commitExpense(ctx, exp)

	case entity.DestinationMovement:
		if len(res.FiscalSplit) > 0 {
			return Decision{}, common.InvalidInputf("fiscal split only applies to expenses")
		}
		mv := r.movementFrom(in, total.Decimal.Neg())
		mv.AccountID = res.AccountID
		if res.Description != "" {
			mv.Description = res.Description
		}
		return r.commitMovement(ctx, mv)

	default:
		return Decision{}, common.InvalidInputf("unsupported resolution kind %q", res.Kind)
	}
}

// ValidateFiscalSplit checks categories are known, amounts non-negative and
// the parts sum to total at cent precision.
func ValidateFiscalSplit(split map[constants.FiscalCategory]decimal.Decimal, total decimal.Decimal) error {
	keys := make([]string, 0, len(split))
	for k := range split {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	sum := decimal.Zero
	for _, k := range keys {
		cat, ok := constants.CanonicalizeFiscal(k)
		if !ok || string(cat) != k {
			return common.InvalidInputf("unknown fiscal category %q", k)
		}
		v := split[constants.FiscalCategory(k)]
		if v.IsNegative() {
			return common.InvalidInputf("fiscal split %s is negative", k)
		}
		sum = sum.Add(v.Round(2))
	}
	if !sum.Equal(total.Round(2)) {
		return common.InvalidInputf("fiscal split sums to %s, total is %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return nil
}
