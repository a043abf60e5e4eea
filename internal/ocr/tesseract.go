package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TesseractRecognizer runs the tesseract CLI on each page image.
type TesseractRecognizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractRecognizer(cfg Config, runner Runner, logger *slog.Logger) *TesseractRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	cfg.withDefaults()
	return &TesseractRecognizer{cfg: cfg, runner: runner, logger: logger}
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, img PageImage) (Recognition, error) {
	tmpDir, err := os.MkdirTemp("", "pdfa-tess-*")
	if err != nil {
		return Recognition{}, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	path := filepath.Join(tmpDir, fmt.Sprintf("page_%d.png", img.Page))
	if err := os.WriteFile(path, img.PNG, 0o600); err != nil {
		return Recognition{}, err
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.args(path)...)
	if err != nil {
		return Recognition{}, fmt.Errorf("tesseract page %d: %w: %s", img.Page, err, truncate(string(errb), 512))
	}
	rec := Recognition{Text: Normalize(string(out))}

	tsv, _, err := t.runner.Run(ctx, t.cfg.Tesseract, append(t.args(path), "tsv")...)
	if err != nil {
		t.logger.Warn("ocr.tesseract.tsv_failed", "page", img.Page, "error", err)
		return rec, nil
	}
	if conf, ok := MeanTSVConfidence(string(tsv)); ok {
		rec.Confidence = &conf
	}
	return rec, nil
}

func (t *TesseractRecognizer) args(path string) []string {
	args := []string{path, "stdout", "-l", strings.Join(t.cfg.Languages, "+")}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return args
}

// MeanTSVConfidence averages the word confidences (0..100) of tesseract TSV
// output, skipping the header and non-word rows.
func MeanTSVConfidence(tsv string) (float64, bool) {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || len(ln) == 0 {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := strings.TrimSpace(cols[10])
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}
