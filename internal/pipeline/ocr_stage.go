package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/async"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

type settled struct {
	unit PageUnit
	err  error
}

// recognizePages renders every page, serves cache hits directly and submits
// the rest through the dispatcher. It waits for every submitted page before
// returning; siblings of a failed page are never cancelled. Results are
// indexed by page number so completion order does not matter.
func (p *Processor) recognizePages(ctx context.Context, job async.Job, total int) ([]PageUnit, error) {
	if total <= 0 {
		return nil, common.NewValidationError("The document has no pages")
	}
	log := p.Logger.With("job_id", job.ID)
	start := time.Now()

	results := make(chan settled, total)
	submitted := 0
	var renderErr error

	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			renderErr = common.NewContextError("recognition", err)
			break
		}
		png, err := p.deps.Reader.RenderPage(ctx, job.FilePath, page)
		if err != nil {
			renderErr = common.NewAppError(common.CodeInternal,
				fmt.Sprintf("Could not render page %d", page), fmt.Errorf("%w: %w", common.ErrInternal, err))
			log.Error("pipeline.ocr.render_failed", "page", page, "error", err)
			break
		}
		hash := ocr.ContentHash(png, p.Cfg.Languages)
		submitted++

		if rec, ok := p.cached(ctx, hash); ok {
			log.Debug("pipeline.ocr.cache_hit", "page", page, "hash", hash)
			results <- settled{unit: recognizedPage(page, hash, rec)}
			continue
		}

		img := ocr.PageImage{Page: page, PNG: png}
		outcome := p.deps.Dispatcher.Submit(ctx, func(ctx context.Context) (ocr.Recognition, error) {
			return p.deps.Recognizer.Recognize(ctx, img)
		})
		go func(page int, hash string) {
			o := <-outcome
			if o.Err != nil {
				results <- settled{unit: PageUnit{PageNumber: page}, err: o.Err}
				return
			}
			p.store(hash, o.Value)
			results <- settled{unit: recognizedPage(page, hash, o.Value)}
		}(page, hash)
	}

	units := make([]PageUnit, total)
	var firstErr error
	firstErrPage := total + 1
	for done := 1; done <= submitted; done++ {
		s := <-results
		if s.err != nil {
			log.Warn("pipeline.ocr.page_failed", "page", s.unit.PageNumber, "code", common.Code(s.err), "error", s.err)
			if s.unit.PageNumber < firstErrPage {
				firstErrPage = s.unit.PageNumber
				firstErr = s.err
			}
		} else {
			units[s.unit.PageNumber-1] = s.unit
		}
		// single receiver keeps per-page reports ordered and monotonic
		p.report(job.ID, fmt.Sprintf(constants.StatusRecognizedPage, done, total), pageProgress(done, total))
	}

	if firstErr != nil {
		return nil, common.NewAppError(common.Code(firstErr),
			fmt.Sprintf("Recognition failed for page %d", firstErrPage), firstErr)
	}
	if renderErr != nil {
		return nil, renderErr
	}

	attrs := []any{"pages", total, "elapsed_ms", time.Since(start).Milliseconds()}
	if mean, ok := MeanConfidence(units); ok {
		attrs = append(attrs, "mean_confidence", mean)
	}
	log.Info("pipeline.ocr.done", attrs...)
	return units, nil
}

func (p *Processor) cached(ctx context.Context, hash string) (ocr.Recognition, bool) {
	if p.deps.Cache == nil {
		return ocr.Recognition{}, false
	}
	rec, ok, err := p.deps.Cache.Get(ctx, hash)
	if err != nil {
		p.Logger.Warn("pipeline.cache.get_failed", "hash", hash, "error", err)
		return ocr.Recognition{}, false
	}
	return rec, ok
}

func (p *Processor) store(hash string, rec ocr.Recognition) {
	if p.deps.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.deps.Cache.Set(ctx, hash, rec); err != nil {
		p.Logger.Warn("pipeline.cache.set_failed", "hash", hash, "error", err)
	}
}

func recognizedPage(page int, hash string, rec ocr.Recognition) PageUnit {
	return PageUnit{
		PageNumber:  page,
		Source:      SourceRecognized,
		Text:        ocr.Normalize(rec.Text),
		Confidence:  rec.Confidence,
		ContentHash: hash,
	}
}

// pageProgress interpolates between the recognition and rule-check checkpoints.
func pageProgress(done, total int) int {
	span := constants.ProgressCheckingRules - constants.ProgressOCRStarted
	return constants.ProgressOCRStarted + span*done/total
}
