package constants

import (
	"strings"
)

type VerdictStatus string

const (
	VerdictPass VerdictStatus = "pass"
	VerdictFail VerdictStatus = "fail"
)

var allVerdictStatuses = []VerdictStatus{
	VerdictPass,
	VerdictFail,
}

func VerdictStatusStrings() []string {
	result := make([]string, len(allVerdictStatuses))
	for i, s := range allVerdictStatuses {
		result[i] = string(s)
	}
	return result
}

// CanonicalVerdict maps a model-produced status token onto pass/fail.
// Anything that is not case-insensitively "pass" is a fail.
func CanonicalVerdict(input string) VerdictStatus {
	if strings.EqualFold(strings.TrimSpace(input), string(VerdictPass)) {
		return VerdictPass
	}
	return VerdictFail
}

// Confidence bounds for a verdict.
const (
	MinConfidence = 0
	MaxConfidence = 100
)
