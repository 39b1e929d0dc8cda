package ocr

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// replySchema describes a sanitized OCR job reply.
func replySchema() map[string]any {
	text := map[string]any{"type": "string"}
	date := map[string]any{"type": "string", "minLength": 6}
	fields := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"supplier_name":   text,
			"supplier_tax_id": text,
			"net_amount":      decimalProp(),
			"tax_amount":      decimalProp(),
			"total_amount":    decimalProp(),
			"currency":        map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`},
			"issue_date":      date,
			"due_date":        date,
			"service_address": text,
			"account_masked":  text,
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"description"},
					"properties": map[string]any{
						"description": text,
						"amount":      decimalProp(),
					},
				},
			},
			"utility": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"supply_code":     text,
					"period_start":    date,
					"period_end":      date,
					"consumption_kwh": decimalProp(),
				},
			},
			"sepa": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"mandate_reference": text,
					"creditor_id":       text,
				},
			},
		},
	}
	return map[string]any{
		"type":     "object",
		"required": []string{"job_id", "status"},
		"properties": map[string]any{
			"job_id": map[string]any{"type": "string", "minLength": 1},
			"status": map[string]any{
				"type": "string",
				"enum": []string{"queued", "running", "succeeded", "failed", "timeout"},
			},
			"text":   text,
			"fields": fields,
			"field_confidence": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{
					"type":    "number",
					"minimum": 0,
					"maximum": 100,
				},
			},
			"error": text,
		},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d+)?$`,
	}
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ocr-reply.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("ocr-reply.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validateReply(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("reply does not match schema: %w", err)
	}
	return nil
}
