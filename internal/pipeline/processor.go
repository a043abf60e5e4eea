// Package pipeline runs one analysis: read embedded text, fall back to page
// recognition for scanned documents, check the rules and publish progress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/async"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

// Config holds thresholds and behavior flags for the pipeline.
type Config struct {
	TextThreshold int           // trimmed embedded text length that skips recognition, default 150
	Languages     []string      // recognition language hints, part of the cache key
	CleanupDelay  time.Duration // grace before the job leaves the registry, default 5s
}

// Deps are the collaborators of one Processor.
type Deps struct {
	Reader     DocumentReader
	Recognizer ocr.Recognizer
	Dispatcher RecognitionDispatcher
	Cache      RecognitionCache // optional
	Checker    llm.RuleChecker
	Progress   ProgressSink
}

// Analysis is what a completed run produced.
type Analysis struct {
	JobID      string     `json:"analysis_id"`
	FileName   string     `json:"file_name"`
	Method     string     `json:"method"` // "text" | "ocr"
	Pages      []PageUnit `json:"pages"`
	TextLength int        `json:"text_length"`
	Result     llm.Result `json:"result"`
	// mean recognition confidence, set when any page reported one
	OCRConfidence *float64      `json:"ocr_confidence,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Failure is the terminal result of a failed job.
type Failure struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Processor coordinates text extraction, recognition and rule checking.
type Processor struct {
	Logger *slog.Logger
	Cfg    Config
	deps   Deps
}

var _ async.Processor = (*Processor)(nil)

func NewProcessor(deps Deps, cfg Config, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case deps.Reader == nil:
		return nil, errors.New("pipeline: reader is required")
	case deps.Recognizer == nil:
		return nil, errors.New("pipeline: recognizer is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("pipeline: dispatcher is required")
	case deps.Checker == nil:
		return nil, errors.New("pipeline: rule checker is required")
	case deps.Progress == nil:
		return nil, errors.New("pipeline: progress sink is required")
	}
	if cfg.TextThreshold <= 0 {
		cfg.TextThreshold = 150
	}
	if cfg.CleanupDelay <= 0 {
		cfg.CleanupDelay = 5 * time.Second
	}
	return &Processor{Logger: logger, Cfg: cfg, deps: deps}, nil
}

// Process runs job to its terminal state. The uploaded file is removed and
// the job is scheduled for removal from the registry on every exit path.
// Failures are published as the job's result, never left pending.
func (p *Processor) Process(ctx context.Context, job async.Job) (err error) {
	log := p.Logger.With("job_id", job.ID)
	defer func() {
		if rerr := os.Remove(job.FilePath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			log.Warn("pipeline.cleanup.remove_failed", "path", job.FilePath, "error", rerr)
		}
		p.deps.Progress.DestroyAfter(job.ID, p.Cfg.CleanupDelay)
	}()
	defer func() {
		if r := recover(); r != nil {
			err = common.NewAppError(common.CodeInternal, "Analysis failed unexpectedly",
				fmt.Errorf("%w: panic: %v", common.ErrInternal, r))
			log.Error("pipeline.panic", "panic", r)
			p.fail(job.ID, err)
		}
	}()

	p.stage(log, constants.StageStarted)
	analysis, err := p.Run(ctx, job)
	if err != nil {
		p.fail(job.ID, err)
		return err
	}
	p.stage(log, constants.StageComplete)
	p.deps.Progress.Update(job.ID, constants.StatusComplete, constants.ProgressDone, analysis.Result)
	log.Info("pipeline.complete",
		"method", analysis.Method,
		"pages", len(analysis.Pages),
		"verdicts", len(analysis.Result.Verdicts),
		"passed", analysis.Result.Passed(),
		"elapsed_ms", analysis.Duration.Milliseconds(),
	)
	return nil
}

func (p *Processor) fail(id string, err error) {
	p.stage(p.Logger.With("job_id", id), constants.StageFailed)
	p.Logger.Error("pipeline.failed", "job_id", id, "code", common.Code(err), "error", err)
	p.deps.Progress.Update(id, constants.StatusFailed, constants.ProgressDone, Failure{
		Error: common.UserMessage(err),
		Code:  common.Code(err),
	})
}

// Run executes every stage up to, but not including, the terminal update.
// It neither removes the input file nor schedules registry cleanup.
func (p *Processor) Run(ctx context.Context, job async.Job) (Analysis, error) {
	start := time.Now()
	log := p.Logger.With("job_id", job.ID)
	out := Analysis{JobID: job.ID, FileName: job.FileName}

	// 1) embedded text
	p.stage(log, constants.StageReadingText)
	p.report(job.ID, constants.StatusReading, constants.ProgressReading)
	doc, err := p.deps.Reader.ReadText(ctx, job.FilePath)
	if err != nil {
		return out, common.NewAppError(common.CodeValidation, "Could not read the PDF document",
			errors.Join(common.ErrInvalidInput, err))
	}
	p.report(job.ID, constants.StatusTextExtracted, constants.ProgressTextExtracted)

	// 2) one branch decision for the whole document
	textLen := doc.TrimmedLen()
	useOCR := textLen < p.Cfg.TextThreshold
	log.Info("pipeline.branch", "text_length", textLen, "threshold", p.Cfg.TextThreshold,
		"pages", doc.Pages, "ocr", useOCR, "read_method", doc.Method)

	var text string
	if !useOCR {
		out.Method = "text"
		out.Pages = textPages(doc)
		text = doc.Text()
	} else {
		p.stage(log, constants.StageOCRFallback)
		p.report(job.ID, constants.StatusRunningOCR, constants.ProgressOCRStarted)
		pages, err := p.recognizePages(ctx, job, doc.Pages)
		if err != nil {
			return out, err
		}
		out.Method = "ocr"
		out.Pages = pages
		if mean, ok := MeanConfidence(pages); ok {
			out.OCRConfidence = &mean
		}
		text = MergePages(pages)
	}

	// 3) rules
	p.stage(log, constants.StageCheckRules)
	p.report(job.ID, constants.StatusCheckingRules, constants.ProgressCheckingRules)
	text = llm.CollapseWhitespace(text)
	out.TextLength = len([]rune(text))
	if text == "" {
		return out, common.NewValidationError("No readable text was found in the document")
	}
	raw, err := p.checkRules(ctx, job, text)
	if err != nil {
		return out, err
	}

	// 4) verdicts
	p.stage(log, constants.StageFinalizing)
	p.report(job.ID, constants.StatusFinalizing, constants.ProgressFinalizing)
	res, err := llm.Normalize(raw, job.Rules...)
	if err != nil {
		log.Warn("pipeline.verdict.malformed", "raw_len", len(raw), "error", err)
		return out, err
	}
	out.Result = res
	out.Duration = time.Since(start)
	return out, nil
}

func (p *Processor) checkRules(ctx context.Context, job async.Job, text string) (string, error) {
	start := time.Now()
	raw, err := p.deps.Checker.CheckRules(ctx, llm.CheckRequest{JobID: job.ID, Text: text, Rules: job.Rules})
	if err != nil {
		var appErr *common.AppError
		if !errors.As(err, &appErr) {
			err = common.NewUpstreamError("llm", err)
		}
		return "", err
	}
	p.Logger.Debug("pipeline.rules.checked", "job_id", job.ID, "rules", len(job.Rules),
		"text_length", len(text), "raw_len", len(raw), "elapsed_ms", time.Since(start).Milliseconds())
	return raw, nil
}

func (p *Processor) stage(log *slog.Logger, s constants.Stage) {
	log.Info("pipeline.stage.start", "stage", string(s))
}

func (p *Processor) report(id, status string, progress int) {
	p.deps.Progress.Update(id, status, progress, nil)
}

func textPages(doc ocr.DocumentText) []PageUnit {
	pages := make([]PageUnit, 0, len(doc.PageTexts))
	for i, t := range doc.PageTexts {
		pages = append(pages, PageUnit{PageNumber: i + 1, Source: SourceText, Text: t})
	}
	return pages
}
