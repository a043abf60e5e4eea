package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm"
)

var (
	inspectRules     []string
	inspectRulesFile string
	inspectTimes     int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.pdf>",
	Short: "Show how a PDF is read and how stable its verdicts are",
	Long: `Report the embedded text found in a PDF and whether recognition would
be used. With --rules, run the full analysis --times times and tally the
verdict per rule, which shows how stable the model's answers are.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	f := inspectCmd.Flags()
	f.StringArrayVar(&inspectRules, "rules", nil, "rule to check (repeatable, or a JSON/YAML list)")
	f.StringVar(&inspectRulesFile, "rules-file", "", "file holding rules as YAML, JSON or plain text")
	f.IntVarP(&inspectTimes, "times", "n", 1, "number of analyses to run")
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]
	out := cmd.OutOrStdout()

	rt, err := NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	doc, err := rt.Reader.ReadText(ctx, path)
	if err != nil {
		return err
	}
	threshold := rt.Processor.Cfg.TextThreshold
	fmt.Fprintf(out, "file:        %s\n", filepath.Base(path))
	fmt.Fprintf(out, "pages:       %d\n", doc.Pages)
	fmt.Fprintf(out, "reader:      %s (%s)\n", doc.Method, doc.Duration)
	fmt.Fprintf(out, "text length: %d (threshold %d)\n", doc.TrimmedLen(), threshold)
	fmt.Fprintf(out, "recognition: %t\n", doc.TrimmedLen() < threshold)
	for _, w := range doc.Warnings {
		fmt.Fprintf(out, "warning:     %s\n", w)
	}

	if len(inspectRules) == 0 && inspectRulesFile == "" {
		return nil
	}
	ruleList, err := collectRules(inspectRules, inspectRulesFile, cfg.Pipeline.MaxRules)
	if err != nil {
		return err
	}
	times := max(inspectTimes, 1)

	var results []llm.Result
	failures := 0
	for i := 0; i < times; i++ {
		res := analyzeOne(ctx, rt, path, ruleList)
		if res.Error != nil {
			failures++
			logger.Warn("inspect.run.failed", "run", i+1, "code", res.Error.Code, "error", res.Error.Error)
			continue
		}
		results = append(results, res.Analysis.Result)
	}
	printTally(out, ruleList, tallyVerdicts(results), len(results), failures)
	return nil
}

// ruleTally counts verdicts for one rule across repeated runs.
type ruleTally struct {
	Pass          int
	Fail          int
	ConfidenceSum int
}

func tallyVerdicts(results []llm.Result) map[string]*ruleTally {
	out := map[string]*ruleTally{}
	for _, r := range results {
		for _, v := range r.Verdicts {
			t, ok := out[v.Rule]
			if !ok {
				t = &ruleTally{}
				out[v.Rule] = t
			}
			if v.Status == constants.VerdictPass {
				t.Pass++
			} else {
				t.Fail++
			}
			t.ConfidenceSum += v.Confidence
		}
	}
	return out
}

func printTally(w io.Writer, ruleList []string, tally map[string]*ruleTally, runs, failures int) {
	fmt.Fprintf(w, "\nruns: %d ok, %d failed\n", runs, failures)
	for _, rule := range ruleList {
		t := tally[rule]
		if t == nil {
			fmt.Fprintf(w, "  %-50s no verdicts\n", rule)
			continue
		}
		n := t.Pass + t.Fail
		fmt.Fprintf(w, "  %-50s pass %d/%d  mean confidence %d\n", rule, t.Pass, n, t.ConfidenceSum/n)
	}
}
