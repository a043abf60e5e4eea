package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/pdf-analyzer/internal/cache"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Check that the text extraction tools, the OCR backend, the LLM
credentials and the recognition cache configured for this host are usable.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== pdf-analyzer doctor ===")
	fmt.Fprintln(out)

	checks := doctorChecks(cfg)
	failed := runChecks(cmd.Context(), out, checks)

	fmt.Fprintln(out)
	if failed > 0 {
		fmt.Fprintf(out, "%d of %d checks failed\n", failed, len(checks))
		return &ExitError{Code: 1}
	}
	fmt.Fprintln(out, "All checks passed ✅")
	return nil
}

func runChecks(ctx context.Context, out io.Writer, checks []check) int {
	failed := 0
	for i, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		detail, err := c.run(cctx)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(out, "[%d/%d] Checking %s... ❌ %v\n", i+1, len(checks), c.name, err)
			continue
		}
		fmt.Fprintf(out, "[%d/%d] Checking %s... ✅ %s\n", i+1, len(checks), c.name, detail)
	}
	return failed
}

func doctorChecks(cfg *common.Config) []check {
	checks := []check{
		{"Go runtime", func(context.Context) (string, error) {
			return runtime.Version(), nil
		}},
		{"pdftotext", binaryCheck(cfg.OCR.Pdftotext)},
		{"pdftoppm", binaryCheck(cfg.OCR.Pdftoppm)},
		{"OCR backend " + cfg.OCR.Backend, ocrBackendCheck(cfg.OCR)},
		{"LLM credentials", func(context.Context) (string, error) {
			if cfg.LLM.APIKey == "" {
				return "", fmt.Errorf("LLM_API_KEY is not set")
			}
			return fmt.Sprintf("%s key %s", cfg.LLM.Provider, maskKey(cfg.LLM.APIKey)), nil
		}},
		{"recognition cache", func(ctx context.Context) (string, error) {
			store, err := cache.Open(ctx, cfg.Cache, logger)
			if err != nil {
				return "", err
			}
			defer store.Close()
			if err := store.Ping(ctx); err != nil {
				return "", err
			}
			return store.Name(), nil
		}},
	}
	return checks
}

func binaryCheck(name string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		return ocr.LookPath(name)
	}
}

func ocrBackendCheck(cfg common.OCRConfig) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if !slices.Contains(ocr.Backends(), cfg.Backend) {
			return "", fmt.Errorf("backend not compiled in (available: %v)", ocr.Backends())
		}
		switch cfg.Backend {
		case "tesseract":
			return ocr.LookPath(cfg.Tesseract)
		case "http":
			if cfg.APIURL == "" {
				return "", fmt.Errorf("TESSERACT_API_URL is not set")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.APIURL, nil)
			if err != nil {
				return "", err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", fmt.Errorf("unreachable: %w", err)
			}
			_ = resp.Body.Close()
			return fmt.Sprintf("%s (HTTP %d)", cfg.APIURL, resp.StatusCode), nil
		default:
			return "in-process", nil
		}
	}
}

// maskKey keeps the last four characters of a secret.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
