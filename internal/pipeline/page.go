package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Source is the extraction path that produced a page's text.
type Source string

const (
	SourceText       Source = "text"
	SourceRecognized Source = "recognized"
)

// PageDelimiter separates pages in merged recognized text.
const PageDelimiter = "\n\n---PAGE---\n\n"

// PageUnit is one page during a single pipeline run.
type PageUnit struct {
	PageNumber  int      `json:"page"`
	Source      Source   `json:"source"`
	Text        string   `json:"text"`
	Confidence  *float64 `json:"confidence,omitempty"`
	ContentHash string   `json:"content_hash,omitempty"`
}

// MergePages joins page texts in ascending page order, whatever order they
// are given in. Each page is prefixed with its number.
func MergePages(pages []PageUnit) string {
	sorted := make([]PageUnit, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PageNumber < sorted[j].PageNumber })

	parts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		parts = append(parts, fmt.Sprintf("Page %d:\n%s", p.PageNumber, strings.TrimSpace(p.Text)))
	}
	return strings.Join(parts, PageDelimiter)
}

// MeanConfidence averages the confidences that are present.
func MeanConfidence(pages []PageUnit) (float64, bool) {
	var sum float64
	n := 0
	for _, p := range pages {
		if p.Confidence != nil {
			sum += *p.Confidence
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
