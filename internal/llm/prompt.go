package llm

import (
	"strconv"
	"strings"
)

// BuildSystemPrompt returns the instruction that pins the model to JSON-only
// verdict output: one object for a single rule, an array otherwise.
func BuildSystemPrompt(multiple bool) string {
	shape := `{ "rule": "", "status": "pass|fail", "evidence": "", "reasoning": "", "confidence": 0 }`
	closing := "Return exactly one JSON object and nothing else."
	if multiple {
		shape = "[" + shape + ", ...]"
		closing = "Return exactly one JSON array with one object per rule, in the order the rules are given, and nothing else."
	}

	parts := []string{
		"You are a precise rule-checker. Output STRICT valid JSON only, no commentary.",
		"You receive text extracted from document pages between ---DOC_START--- and ---DOC_END---, followed by the rules to check.",
		"For every rule:",
		"1. Decide PASS or FAIL whether the document satisfies the rule.",
		"2. Provide one short evidence sentence that includes the page number when known.",
		"3. Provide a 1-2 sentence reasoning.",
		"4. Output an integer confidence 0-100 (higher = more sure).",
		"5. Echo the rule text in \"rule\".",
		"Return ONLY JSON matching this schema: " + shape,
		closing,
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt frames the document text and the rules.
func BuildUserPrompt(text string, rules []string) string {
	var b strings.Builder
	b.WriteString("Below is the extracted text from document pages:\n")
	b.WriteString("---DOC_START---\n")
	b.WriteString(text)
	b.WriteString("\n---DOC_END---\n")
	if len(rules) == 1 {
		b.WriteString("RULE_TO_CHECK: ")
		b.WriteString(strconv.Quote(rules[0]))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString("RULES_TO_CHECK:\n")
	for i, r := range rules {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	return b.String()
}

// CollapseWhitespace joins all whitespace runs into single spaces and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
