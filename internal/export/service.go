// Package export renders analysis verdicts as XLSX workbooks.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/pdf-analyzer/internal/llm"
)

const sheet = "Verdicts"

// Entry is one analyzed document. Err is set when the analysis failed.
type Entry struct {
	FileName string
	JobID    string
	Method   string
	Result   llm.Result
	Err      string
}

// Service produces XLSX bytes for verdict reports.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// VerdictsXLSX writes one row per verdict, or one error row per failed document.
func (s *Service) VerdictsXLSX(entries []Entry) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Document",
		"Analysis ID",
		"Method",
		"Rule",
		"Status",
		"Confidence",
		"Evidence",
		"Reasoning",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	row := 2
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for _, e := range entries {
		if e.Err != "" || len(e.Result.Verdicts) == 0 {
			write(1, e.FileName)
			write(2, e.JobID)
			write(3, e.Method)
			write(9, truncate(e.Err, 500))
			row++
			continue
		}
		for _, v := range e.Result.Verdicts {
			write(1, e.FileName)
			write(2, e.JobID)
			write(3, e.Method)
			write(4, v.Rule)
			write(5, string(v.Status))
			write(6, v.Confidence)
			write(7, truncate(v.Evidence, 500))
			write(8, truncate(v.Reasoning, 500))
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 32) // document
	_ = f.SetColWidth(sheet, "B", "B", 38) // id
	_ = f.SetColWidth(sheet, "C", "C", 8)
	_ = f.SetColWidth(sheet, "D", "D", 48) // rule
	_ = f.SetColWidth(sheet, "E", "F", 12)
	_ = f.SetColWidth(sheet, "G", "H", 60)
	_ = f.SetColWidth(sheet, "I", "I", 40)
	_ = f.AutoFilter(sheet, fmt.Sprintf("A1:I%d", max(row-1, 1)), nil)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"documents", len(entries),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
