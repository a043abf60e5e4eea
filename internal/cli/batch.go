package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/pdf-analyzer/internal/async"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/export"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ingest"
	"github.com/joseph-ayodele/pdf-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/pdf-analyzer/internal/rules"
)

var (
	batchRules      []string
	batchRulesFile  string
	batchOut        string
	batchJSON       string
	batchParallel   int
	batchSkipHidden bool
	batchStrict     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <path|dir|glob>...",
	Short: "Analyze local PDF files and write an XLSX report",
	Long: `Analyze every PDF found under the given files, directories or
doublestar globs against the same rules, then write one XLSX report.
Input files are left in place.

Examples:
  pdf-analyzer batch ./inbox --rules "Document is signed"
  pdf-analyzer batch "contracts/**/*.pdf" --rules-file rules.yaml --json -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	f := batchCmd.Flags()
	f.StringArrayVar(&batchRules, "rules", nil, "rule to check (repeatable, or a JSON/YAML list)")
	f.StringVar(&batchRulesFile, "rules-file", "", "file holding rules as YAML, JSON or plain text")
	f.StringVarP(&batchOut, "out", "o", "pdf-analysis.xlsx", "XLSX report path (empty to skip)")
	f.StringVar(&batchJSON, "json", "", "also write analyses as JSON to this path (- for stdout)")
	f.IntVarP(&batchParallel, "parallel", "p", 2, "documents analyzed concurrently")
	f.BoolVar(&batchSkipHidden, "skip-hidden", true, "ignore dot files and dot directories")
	f.BoolVar(&batchStrict, "strict", false, "exit with status 2 when any rule fails")
}

// collectRules merges --rules values and --rules-file into one validated list.
func collectRules(values []string, file string, max int) ([]string, error) {
	if max <= 0 {
		max = rules.DefaultMax
	}
	var out []string
	for _, raw := range values {
		parsed, err := rules.Parse(raw, max)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed...)
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, common.NewAppError(common.CodeValidation, "cannot read rules file", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
		}
		parsed, err := rules.Parse(string(data), max)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed...)
	}
	switch {
	case len(out) == 0:
		return nil, common.NewValidationError("Rules are required")
	case len(out) > max:
		return nil, common.NewValidationError(fmt.Sprintf("At most %d rules may be checked at once", max))
	}
	return out, nil
}

// documentResult pairs an input with its analysis or failure.
type documentResult struct {
	Path     string             `json:"path"`
	Analysis *pipeline.Analysis `json:"analysis,omitempty"`
	Error    *pipeline.Failure  `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ruleList, err := collectRules(batchRules, batchRulesFile, cfg.Pipeline.MaxRules)
	if err != nil {
		return err
	}

	files, fileErrs, stats, err := ingest.Discover(args, batchSkipHidden)
	if err != nil {
		return err
	}
	for _, fe := range fileErrs {
		logger.Warn("batch.discover.skip", "path", fe.Path, "error", fe.Err)
	}
	logger.Info("batch.discovered", "scanned", stats.Scanned, "matched", stats.Matched, "failed", stats.Failed)
	if len(files) == 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("no PDF files found in %v", args)}
	}

	rt, err := NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(cctx); err != nil {
			logger.Warn("batch.close", "error", err)
		}
	}()

	progressOut := cmd.OutOrStdout()
	if batchJSON == "-" {
		progressOut = cmd.ErrOrStderr()
	}
	start := time.Now()
	results := analyzeAll(ctx, rt, files, ruleList, batchParallel, progressOut)

	if err := writeBatchOutputs(results, batchOut, batchJSON, cmd.OutOrStdout()); err != nil {
		return err
	}

	failedDocs, failedRules := summarize(results)
	logger.Info("batch.done",
		"documents", len(results),
		"failed_documents", failedDocs,
		"failed_rules", failedRules,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	switch {
	case failedDocs > 0:
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d documents could not be analyzed", failedDocs, len(results))}
	case batchStrict && failedRules > 0:
		return &ExitError{Code: 2}
	}
	return nil
}

// analyzeAll runs up to parallel analyses at a time and keeps input order.
func analyzeAll(ctx context.Context, rt *Runtime, files, ruleList []string, parallel int, w io.Writer) []documentResult {
	if parallel <= 0 {
		parallel = 1
	}
	results := make([]documentResult, len(files))
	var (
		g    errgroup.Group
		mu   sync.Mutex
		done int
	)
	g.SetLimit(parallel)
	for i, path := range files {
		g.Go(func() error {
			var res documentResult
			if err := ctx.Err(); err != nil {
				res = documentResult{Path: path, Error: &pipeline.Failure{Error: err.Error(), Code: common.Code(err)}}
			} else {
				res = analyzeOne(ctx, rt, path, ruleList)
			}
			results[i] = res

			mu.Lock()
			done++
			fmt.Fprintf(w, "[%d/%d] %s ... %s\n", done, len(files), filepath.Base(path), describe(res))
			mu.Unlock()
			return nil
		})
	}
	// per-document failures are recorded in results, never returned
	_ = g.Wait()
	return results
}

func analyzeOne(ctx context.Context, rt *Runtime, path string, ruleList []string) documentResult {
	id := uuid.NewString()
	if _, err := rt.Registry.Create(id); err != nil {
		return documentResult{Path: path, Error: &pipeline.Failure{Error: err.Error(), Code: common.Code(err)}}
	}
	defer rt.Registry.Destroy(id)

	job := async.Job{
		ID:          id,
		FilePath:    path,
		FileName:    filepath.Base(path),
		Rules:       ruleList,
		SubmittedAt: time.Now(),
	}
	if cfg.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Pipeline.Timeout)
		defer cancel()
	}
	analysis, err := rt.Processor.Run(ctx, job)
	if err != nil {
		return documentResult{Path: path, Error: &pipeline.Failure{Error: common.UserMessage(err), Code: common.Code(err)}}
	}
	return documentResult{Path: path, Analysis: &analysis}
}

func describe(res documentResult) string {
	if res.Error != nil {
		return "❌ " + res.Error.Error
	}
	r := res.Analysis.Result
	return fmt.Sprintf("%d/%d rules passed (%s)", r.Passed(), len(r.Verdicts), res.Analysis.Method)
}

func summarize(results []documentResult) (failedDocs, failedRules int) {
	for _, res := range results {
		if res.Error != nil {
			failedDocs++
			continue
		}
		r := res.Analysis.Result
		failedRules += len(r.Verdicts) - r.Passed()
	}
	return failedDocs, failedRules
}

func toEntries(results []documentResult) []export.Entry {
	entries := make([]export.Entry, 0, len(results))
	for _, res := range results {
		e := export.Entry{FileName: filepath.Base(res.Path)}
		if res.Error != nil {
			e.Err = res.Error.Error
		} else {
			e.JobID = res.Analysis.JobID
			e.Method = res.Analysis.Method
			e.Result = res.Analysis.Result
		}
		entries = append(entries, e)
	}
	return entries
}

func writeBatchOutputs(results []documentResult, xlsxPath, jsonPath string, stdout io.Writer) error {
	if xlsxPath != "" {
		data, err := export.NewService(logger).VerdictsXLSX(toEntries(results))
		if err != nil {
			return common.WrapError(err, "render report")
		}
		if err := os.WriteFile(xlsxPath, data, 0o644); err != nil {
			return common.WrapError(err, "write report")
		}
		logger.Info("batch.report.written", "path", xlsxPath, "bytes", len(data))
	}
	if jsonPath == "" {
		return nil
	}
	var w io.Writer = stdout
	if jsonPath != "-" {
		f, err := os.Create(jsonPath)
		if err != nil {
			return common.WrapError(err, "create json output")
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
