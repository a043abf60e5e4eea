package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

func readWithGo(path string, maxPages int) (doc DocumentText, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return DocumentText{}, err
	}
	defer f.Close()

	total := r.NumPage()
	if total == 0 {
		return DocumentText{}, fmt.Errorf("document has no pages")
	}
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}

	doc = DocumentText{Pages: total, PageTexts: make([]string, total), Method: "pdf-go"}
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return DocumentText{}, fmt.Errorf("page %d: %w", i, err)
		}
		doc.PageTexts[i-1] = text
	}
	return doc, nil
}

func (r *Reader) pdfToText(ctx context.Context, path string) (DocumentText, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := r.runner.Run(ctx, r.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return DocumentText{Method: "pdftotext", Warnings: []string{string(errb)}}, fmt.Errorf("pdftotext: %w", err)
	}
	// A form-feed \f is used as page separator by default
	pages := strings.Split(strings.TrimSuffix(string(out), "\f"), "\f")
	if r.cfg.MaxPages > 0 && len(pages) > r.cfg.MaxPages {
		pages = pages[:r.cfg.MaxPages]
	}
	return DocumentText{Pages: len(pages), PageTexts: pages, Method: "pdftotext"}, nil
}
