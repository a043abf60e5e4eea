// Package ocr reads embedded PDF text, renders pages to images and turns
// page images back into text through a pluggable Recognizer.
package ocr

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Languages []string // recognition language hints, default ["eng"]
	DPI       int      // rasterization DPI, default 144 (2x of 72)
	MaxPages  int      // 0 = no limit

	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default

	APIURL  string        // remote recognition endpoint for the http backend
	Timeout time.Duration // per-call deadline for the http backend
}

func (c *Config) withDefaults() {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{"eng"}
	}
	if c.DPI <= 0 {
		c.DPI = 144
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
}

// DocumentText is the embedded text of a whole document.
type DocumentText struct {
	Pages     int
	PageTexts []string
	Method    string // "pdf-go" | "pdftotext"
	Duration  time.Duration
	Warnings  []string
}

// Text joins the page texts.
func (d DocumentText) Text() string {
	return strings.Join(d.PageTexts, "\n")
}

// TrimmedLen is the character count of the trimmed document text.
func (d DocumentText) TrimmedLen() int {
	return len([]rune(strings.TrimSpace(d.Text())))
}

// Reader extracts embedded text and renders pages.
type Reader struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewReader(cfg Config, runner Runner, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	cfg.withDefaults()
	return &Reader{cfg: cfg, runner: runner, logger: logger}
}

// Config returns the effective configuration.
func (r *Reader) Config() Config { return r.cfg }

// ReadText extracts embedded text using the Go PDF reader, falling back to
// pdftotext when the document cannot be parsed in-process.
func (r *Reader) ReadText(ctx context.Context, path string) (DocumentText, error) {
	start := time.Now()
	doc, err := readWithGo(path, r.cfg.MaxPages)
	if err == nil {
		doc.Duration = time.Since(start)
		r.logger.Debug("ocr.read.ok", "path", path, "method", doc.Method, "pages", doc.Pages)
		return doc, nil
	}

	r.logger.Warn("ocr.read.go_failed", "path", path, "error", err)
	doc, ferr := r.pdfToText(ctx, path)
	doc.Duration = time.Since(start)
	if ferr != nil {
		return doc, ferr
	}
	doc.Warnings = append(doc.Warnings, "go reader: "+err.Error())
	r.logger.Debug("ocr.read.ok", "path", path, "method", doc.Method, "pages", doc.Pages)
	return doc, nil
}
