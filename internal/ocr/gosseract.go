//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// GosseractRecognizer runs libtesseract in-process. A gosseract client is
// not safe for concurrent use, so clients are pooled.
type GosseractRecognizer struct {
	cfg    Config
	logger *slog.Logger
	pool   sync.Pool
}

func init() {
	RegisterBackend("gosseract", func(cfg Config, _ Runner, logger *slog.Logger) (Recognizer, error) {
		return NewGosseractRecognizer(cfg, logger), nil
	})
}

func NewGosseractRecognizer(cfg Config, logger *slog.Logger) *GosseractRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.withDefaults()
	g := &GosseractRecognizer{cfg: cfg, logger: logger}
	g.pool.New = func() any { return gosseract.NewClient() }
	return g
}

func (g *GosseractRecognizer) Recognize(ctx context.Context, img PageImage) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}
	client := g.pool.Get().(*gosseract.Client)

	if err := client.SetLanguage(g.cfg.Languages...); err != nil {
		g.pool.Put(client)
		return Recognition{}, fmt.Errorf("gosseract languages %s: %w", strings.Join(g.cfg.Languages, "+"), err)
	}
	if g.cfg.TessdataDir != "" {
		client.TessdataPrefix = g.cfg.TessdataDir
	}
	if err := client.SetImageFromBytes(img.PNG); err != nil {
		g.pool.Put(client)
		return Recognition{}, fmt.Errorf("gosseract page %d: %w", img.Page, err)
	}

	type result struct {
		rec Recognition
		err error
	}
	done := make(chan result, 1)
	// the client goes back to the pool only once recognition has returned
	go func() {
		defer g.pool.Put(client)
		text, err := client.Text()
		if err != nil {
			done <- result{err: err}
			return
		}
		rec := Recognition{Text: Normalize(text)}
		if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
			var sum float64
			for _, b := range boxes {
				sum += b.Confidence
			}
			conf := sum / float64(len(boxes))
			rec.Confidence = &conf
		}
		done <- result{rec: rec}
	}()

	select {
	case <-ctx.Done():
		return Recognition{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Recognition{}, fmt.Errorf("gosseract page %d: %w", img.Page, r.err)
		}
		return r.rec, nil
	}
}
