package llm

import (
	"context"
	"encoding/json"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
)

// CheckRequest is what the pipeline sends to a rule-checking model.
type CheckRequest struct {
	JobID string
	Text  string
	Rules []string
}

// Multiple reports whether the model is asked for an array of verdicts.
func (r CheckRequest) Multiple() bool { return len(r.Rules) > 1 }

// RuleChecker is the interface our pipeline depends on. It returns the
// model's raw text; Normalize turns that into verdicts.
type RuleChecker interface {
	CheckRules(ctx context.Context, req CheckRequest) (string, error)
}

// Verdict is the normalized outcome for one rule.
type Verdict struct {
	Rule       string                  `json:"rule"`
	Status     constants.VerdictStatus `json:"status"`
	Evidence   string                  `json:"evidence"`
	Reasoning  string                  `json:"reasoning"`
	Confidence int                     `json:"confidence"`
}

// Result holds the verdicts for one analysis. It encodes as a single object
// when the model answered with one, and as an array otherwise.
type Result struct {
	Verdicts []Verdict
	Multiple bool
}

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Multiple && len(r.Verdicts) == 1 {
		return json.Marshal(r.Verdicts[0])
	}
	if r.Verdicts == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Verdicts)
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var many []Verdict
	if err := json.Unmarshal(b, &many); err == nil {
		r.Verdicts, r.Multiple = many, true
		return nil
	}
	var one Verdict
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	r.Verdicts, r.Multiple = []Verdict{one}, false
	return nil
}

// Passed counts passing verdicts.
func (r Result) Passed() int {
	n := 0
	for _, v := range r.Verdicts {
		if v.Status == constants.VerdictPass {
			n++
		}
	}
	return n
}
