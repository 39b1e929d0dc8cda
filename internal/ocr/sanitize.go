package ocr

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

var moneyFields = []string{"net_amount", "tax_amount", "total_amount"}

var allowedFields = map[string]struct{}{
	"supplier_name": {}, "supplier_tax_id": {}, "net_amount": {}, "tax_amount": {},
	"total_amount": {}, "currency": {}, "issue_date": {}, "due_date": {},
	"service_address": {}, "account_masked": {}, "line_items": {}, "utility": {}, "sepa": {},
}

var stringFields = []string{
	"supplier_name", "supplier_tax_id", "currency", "issue_date", "due_date",
	"service_address", "account_masked",
}

// sanitizeFields normalizes the raw fields object of an OCR reply:
//   - renames known synonyms
//   - money values become plain decimal strings ("1.234,50 €" -> "1234.50")
//   - null, empty and unparsable optionals are dropped
//   - unknown keys are removed
func sanitizeFields(m map[string]any) []string {
	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}
	renamed("total", "total_amount")
	renamed("subtotal", "net_amount")
	renamed("base_amount", "net_amount")
	renamed("vat_amount", "tax_amount")
	renamed("tax", "tax_amount")
	renamed("supplier", "supplier_name")
	renamed("nif", "supplier_tax_id")
	renamed("iban", "account_masked")

	for _, k := range moneyFields {
		if v, ok := m[k]; ok {
			if s, ok := coerceDecimal(v); ok {
				m[k] = s
			} else {
				delete(m, k)
				dropped = append(dropped, k+"(invalid)")
			}
		}
	}

	for k := range maps.Clone(m) {
		if _, ok := allowedFields[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	for _, k := range stringFields {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				m[k] = s
			} else {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			}
		case nil:
			if _, ok := m[k]; ok {
				delete(m, k)
				dropped = append(dropped, k+"(null)")
			}
		}
	}
	if c, ok := m["currency"].(string); ok {
		m["currency"] = strings.ToUpper(c)
	}

	if items, ok := m["line_items"].([]any); ok {
		for _, it := range items {
			if li, ok := it.(map[string]any); ok {
				if s, ok := coerceDecimal(li["amount"]); ok {
					li["amount"] = s
				} else {
					delete(li, "amount")
				}
			}
		}
	}
	if u, ok := m["utility"].(map[string]any); ok {
		if s, ok := coerceDecimal(u["consumption_kwh"]); ok {
			u["consumption_kwh"] = s
		} else {
			delete(u, "consumption_kwh")
		}
	}
	return dropped
}

// coerceDecimal turns a JSON number or a formatted amount string into a
// plain decimal string.
func coerceDecimal(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", false
		}
		d, err := utils.ParseAmount(s)
		if err != nil {
			return "", false
		}
		return d.String(), true
	default:
		return "", false
	}
}

// sanitizeReply applies sanitizeFields to the "fields" member of a raw reply.
func sanitizeReply(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	var dropped []string
	switch f := m["fields"].(type) {
	case map[string]any:
		dropped = sanitizeFields(f)
	case nil:
		delete(m, "fields")
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}
