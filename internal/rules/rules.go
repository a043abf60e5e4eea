// Package rules parses the caller-supplied rule specification.
//
// Accepted shapes: a JSON array of strings, a JSON string, a YAML sequence,
// a YAML mapping with a "rules" key, or plain text taken as a single rule.
package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

// DefaultMax caps rule count when the caller passes max <= 0.
const DefaultMax = 20

// Parse returns the trimmed, non-empty rules found in raw.
func Parse(raw string, max int) ([]string, error) {
	if max <= 0 {
		max = DefaultMax
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, common.NewValidationError("Rules are required")
	}

	out, err := parseStructured(raw)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{raw}
	}

	rules := make([]string, 0, len(out))
	for _, r := range out {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, r)
		}
	}
	switch {
	case len(rules) == 0:
		return nil, common.NewValidationError("Rules are required")
	case common.MaxItems(max)("rules", rules) != nil:
		return nil, common.NewValidationError(fmt.Sprintf("At most %d rules may be checked at once", max))
	}
	return rules, nil
}

// parseStructured returns nil, nil when raw should be read as plain text.
func parseStructured(raw string) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]

	switch root.Kind {
	case yaml.ScalarNode:
		return []string{root.Value}, nil
	case yaml.SequenceNode:
		return scalars(root)
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value != "rules" {
				continue
			}
			switch v := root.Content[i+1]; v.Kind {
			case yaml.SequenceNode:
				return scalars(v)
			case yaml.ScalarNode:
				return []string{v.Value}, nil
			default:
				return nil, common.NewValidationError("rules must be a list of strings")
			}
		}
		// "Invoice total: must be present" reads as a mapping; keep it verbatim
		return nil, nil
	default:
		return nil, nil
	}
}

func scalars(seq *yaml.Node) ([]string, error) {
	out := make([]string, 0, len(seq.Content))
	for _, item := range seq.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, common.NewValidationError("rules must be a list of strings")
		}
		out = append(out, item.Value)
	}
	return out, nil
}
