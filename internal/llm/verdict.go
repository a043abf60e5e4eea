package llm

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

// Normalize parses a model reply into verdicts. The reply may be wrapped in
// prose or code fences; only the span from the first '{' or '[' to the last
// matching closer is parsed. rules are the rules that were submitted and
// fill in a missing "rule" field by position.
func Normalize(raw string, rules ...string) (Result, error) {
	span, ok := jsonSpan(raw)
	if !ok {
		return Result{}, common.NewMalformedVerdict("no JSON object or array in model reply", nil)
	}

	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Result{}, common.NewMalformedVerdict("model reply is not valid JSON", err)
	}
	if dec.More() {
		return Result{}, common.NewMalformedVerdict("model reply has trailing data after JSON", nil)
	}

	schema, err := verdictShape()
	if err != nil {
		return Result{}, common.NewAppError(common.CodeInternal, "verdict schema", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Result{}, common.NewMalformedVerdict("model reply does not match verdict shape", err)
	}

	switch v := doc.(type) {
	case map[string]any:
		return Result{Verdicts: []Verdict{coerceVerdict(v, ruleAt(rules, 0))}}, nil
	case []any:
		out := Result{Verdicts: make([]Verdict, 0, len(v)), Multiple: true}
		for i, item := range v {
			obj, _ := item.(map[string]any)
			out.Verdicts = append(out.Verdicts, coerceVerdict(obj, ruleAt(rules, i)))
		}
		return out, nil
	default:
		return Result{}, common.NewMalformedVerdict("model reply is neither an object nor an array", nil)
	}
}

func jsonSpan(raw string) (string, bool) {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if raw[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(raw, closer)
	if end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func ruleAt(rules []string, i int) string {
	if i < len(rules) {
		return rules[i]
	}
	if len(rules) == 1 {
		return rules[0]
	}
	return ""
}

func coerceVerdict(m map[string]any, submittedRule string) Verdict {
	v := Verdict{
		Rule:       textField(m["rule"]),
		Status:     constants.VerdictFail,
		Evidence:   textField(m["evidence"]),
		Reasoning:  textField(m["reasoning"]),
		Confidence: confidenceField(m["confidence"]),
	}
	if v.Rule == "" {
		v.Rule = submittedRule
	}
	if s, ok := m["status"].(string); ok {
		v.Status = constants.CanonicalVerdict(s)
	}
	return v
}

func textField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func confidenceField(v any) int {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return constants.MinConfidence
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return constants.MinConfidence
		}
		f = n
	case float64:
		f = t
	default:
		return constants.MinConfidence
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return constants.MinConfidence
	}
	f = math.Round(f)
	if f < constants.MinConfidence {
		return constants.MinConfidence
	}
	if f > constants.MaxConfidence {
		return constants.MaxConfidence
	}
	return int(f)
}
