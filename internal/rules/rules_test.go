package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"json array", `["Has a signature", " Dated 2024 ", ""]`, []string{"Has a signature", "Dated 2024"}},
		{"json string", `"Mentions a total amount"`, []string{"Mentions a total amount"}},
		{"yaml sequence", "- first rule\n- second rule\n", []string{"first rule", "second rule"}},
		{"yaml mapping", "rules:\n  - alpha\n  - beta\n", []string{"alpha", "beta"}},
		{"mapping with single rule", "rules: only one", []string{"only one"}},
		{"plain text", "The document must mention a due date", []string{"The document must mention a due date"}},
		{"plain text with colon", "Invoice total: must be present", []string{"Invoice total: must be present"}},
		{"unbalanced json falls back", `["broken`, []string{`["broken`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
	}{
		{"empty", "   ", 0},
		{"empty array", "[]", 0},
		{"only blanks", `["", "  "]`, 0},
		{"nested list", "- [a, b]\n", 0},
		{"too many", "[" + strings.Repeat(`"r",`, 3) + `"r"]`, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, tt.max)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}
