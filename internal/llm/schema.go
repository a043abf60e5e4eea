package llm

import "github.com/joseph-ayodele/pdf-analyzer/constants"

// BuildVerdictJSONSchema returns the loose structural schema a model reply
// must satisfy before field coercion: one object, or a non-empty array of objects.
func BuildVerdictJSONSchema() map[string]any {
	return map[string]any{
		"oneOf": []any{
			map[string]any{"type": "object"},
			map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "object"},
			},
		},
	}
}

// BuildVerdictResponseSchema describes the exact verdict shape. It is sent
// to providers that accept a response schema.
func BuildVerdictResponseSchema(multiple bool) map[string]any {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"rule":       map[string]any{"type": "string"},
			"status":     map[string]any{"type": "string", "enum": constants.VerdictStatusStrings()},
			"evidence":   map[string]any{"type": "string"},
			"reasoning":  map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "integer", "minimum": constants.MinConfidence, "maximum": constants.MaxConfidence},
		},
		"required": []string{"rule", "status", "evidence", "reasoning", "confidence"},
	}
	if !multiple {
		return item
	}
	return map[string]any{"type": "array", "items": item}
}
