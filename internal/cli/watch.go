package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ingest"
)

var (
	watchRules      []string
	watchRulesFile  string
	watchOutDir     string
	watchInitial    bool
	watchDebounce   time.Duration
	watchParallel   int
	watchSkipHidden bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Analyze PDFs as they appear in watched directories",
	Long: `Watch directories recursively and analyze every PDF that is created or
rewritten there. Each analysis is written as <name>.json into --out-dir.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	f := watchCmd.Flags()
	f.StringArrayVar(&watchRules, "rules", nil, "rule to check (repeatable, or a JSON/YAML list)")
	f.StringVar(&watchRulesFile, "rules-file", "", "file holding rules as YAML, JSON or plain text")
	f.StringVar(&watchOutDir, "out-dir", "results", "directory receiving one JSON result per document")
	f.BoolVar(&watchInitial, "initial-scan", true, "analyze PDFs already present at startup")
	f.DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period before a changed file is analyzed")
	f.IntVarP(&watchParallel, "parallel", "p", 2, "documents analyzed concurrently")
	f.BoolVar(&watchSkipHidden, "skip-hidden", true, "ignore dot files and dot directories")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ruleList, err := collectRules(watchRules, watchRulesFile, cfg.Pipeline.MaxRules)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(watchOutDir, 0o755); err != nil {
		return common.WrapError(err, "create out dir")
	}

	rt, err := NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(cctx); err != nil {
			logger.Warn("watch.close", "error", err)
		}
	}()

	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       args,
		InitialScan: watchInitial,
		SkipHidden:  watchSkipHidden,
		Debounce:    watchDebounce,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	go func() {
		for err := range errs {
			logger.Warn("watch.error", "error", err)
		}
	}()

	workers := watchParallel
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				res := analyzeOne(ctx, rt, path, ruleList)
				out, err := writeResult(watchOutDir, res)
				if err != nil {
					logger.Error("watch.result.write_failed", "path", path, "error", err)
					continue
				}
				logger.Info("watch.analyzed", "path", path, "result", out, "summary", describe(res))
			}
		}()
	}
	wg.Wait()
	logger.Info("watch.stopped")
	return nil
}

// writeResult stores res as JSON next to other results, named after the input.
func writeResult(dir string, res documentResult) (string, error) {
	name := strings.TrimSuffix(filepath.Base(res.Path), filepath.Ext(res.Path)) + ".json"
	out := filepath.Join(dir, name)
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	tmp := out + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	return out, os.Rename(tmp, out)
}
