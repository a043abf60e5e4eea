package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm"
)

func TestVerdictsXLSX(t *testing.T) {
	svc := NewService(nil)
	b, err := svc.VerdictsXLSX([]Entry{
		{
			FileName: "invoice.pdf",
			JobID:    "a1",
			Method:   "text",
			Result: llm.Result{Multiple: true, Verdicts: []llm.Verdict{
				{Rule: "Has a total", Status: constants.VerdictPass, Evidence: "Total: 10", Confidence: 92},
				{Rule: "Is signed", Status: constants.VerdictFail, Reasoning: "no signature", Confidence: 70},
			}},
		},
		{FileName: "scan.pdf", JobID: "b2", Method: "ocr", Err: "Recognition failed for page 1"},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Document", rows[0][0])
	assert.Equal(t, []string{"invoice.pdf", "a1", "text", "Has a total", "pass", "92", "Total: 10"}, rows[1])
	assert.Equal(t, "Is signed", rows[2][3])
	assert.Equal(t, "no signature", rows[2][7])
	assert.Equal(t, "scan.pdf", rows[3][0])
	assert.Equal(t, "Recognition failed for page 1", rows[3][8])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
