package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

func TestNormalize_CodeFencedObject(t *testing.T) {
	res, err := Normalize("```json\n{\"status\":\"PASS\",\"confidence\":\"87\"}\n```")
	require.NoError(t, err)
	require.Len(t, res.Verdicts, 1)
	assert.False(t, res.Multiple)
	assert.Equal(t, constants.VerdictPass, res.Verdicts[0].Status)
	assert.Equal(t, 87, res.Verdicts[0].Confidence)
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no json", "no json here"},
		{"empty", ""},
		{"unbalanced", "{\"status\": \"pass\""},
		{"invalid json", "{status: pass}"},
		{"closer before opener", "} nothing {"},
		{"scalar array", "[1, 2]"},
		{"empty array", "[]"},
		{"two objects", "{\"status\":\"pass\"} and {\"status\":\"fail\"}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrMalformedVerdict), "got %v", err)
		})
	}
}

func TestNormalize_ConfidenceCoercion(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"confidence":150}`, 100},
		{`{"confidence":-4}`, 0},
		{`{"confidence":"high"}`, 0},
		{`{"confidence":null}`, 0},
		{`{}`, 0},
		{`{"confidence":72.6}`, 73},
		{`{"confidence":"55%"}`, 55},
		{`{"confidence":true}`, 0},
		{`{"confidence":1e300}`, 100},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			res, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Verdicts[0].Confidence)
		})
	}
}

func TestNormalize_StatusCoercion(t *testing.T) {
	tests := []struct {
		raw  string
		want constants.VerdictStatus
	}{
		{`{"status":"pass"}`, constants.VerdictPass},
		{`{"status":" Pass "}`, constants.VerdictPass},
		{`{"status":"PASSED"}`, constants.VerdictFail},
		{`{"status":"FAIL"}`, constants.VerdictFail},
		{`{"status":"unknown"}`, constants.VerdictFail},
		{`{"status":true}`, constants.VerdictFail},
		{`{}`, constants.VerdictFail},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			res, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Verdicts[0].Status)
		})
	}
}

func TestNormalize_ArrayWithSubmittedRules(t *testing.T) {
	raw := "Sure! Here are the results:\n[" +
		`{"rule":"Has a signature","status":"pass","evidence":"Page 2: signed","reasoning":"Signature present.","confidence":90},` +
		`{"status":"Fail","confidence":"40"}` +
		"]\nLet me know if you need more."

	res, err := Normalize(raw, "Has a signature", "Mentions a due date")
	require.NoError(t, err)
	assert.True(t, res.Multiple)
	require.Len(t, res.Verdicts, 2)

	assert.Equal(t, Verdict{
		Rule:       "Has a signature",
		Status:     constants.VerdictPass,
		Evidence:   "Page 2: signed",
		Reasoning:  "Signature present.",
		Confidence: 90,
	}, res.Verdicts[0])
	assert.Equal(t, "Mentions a due date", res.Verdicts[1].Rule)
	assert.Equal(t, constants.VerdictFail, res.Verdicts[1].Status)
	assert.Equal(t, 40, res.Verdicts[1].Confidence)
	assert.Equal(t, "", res.Verdicts[1].Evidence)
	assert.Equal(t, 1, res.Passed())
}

func TestNormalize_SingleRuleDefault(t *testing.T) {
	res, err := Normalize(`{"status":"pass"}`, "Document is dated")
	require.NoError(t, err)
	assert.Equal(t, "Document is dated", res.Verdicts[0].Rule)
}

func TestResult_JSONShape(t *testing.T) {
	single := Result{Verdicts: []Verdict{{Rule: "r", Status: constants.VerdictPass, Confidence: 10}}}
	b, err := json.Marshal(single)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rule":"r","status":"pass","evidence":"","reasoning":"","confidence":10}`, string(b))

	many := Result{Verdicts: single.Verdicts, Multiple: true}
	b, err = json.Marshal(many)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"rule":"r","status":"pass","evidence":"","reasoning":"","confidence":10}]`, string(b))

	var back Result
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, many, back)
}
