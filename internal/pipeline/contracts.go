package pipeline

import (
	"context"
	"time"

	"github.com/joseph-ayodele/pdf-analyzer/internal/async"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

// DocumentReader extracts embedded text and renders single pages.
type DocumentReader interface {
	ReadText(ctx context.Context, path string) (ocr.DocumentText, error)
	RenderPage(ctx context.Context, path string, page int) ([]byte, error)
}

// RecognitionDispatcher admits recognition tasks under a concurrency limit.
type RecognitionDispatcher interface {
	Submit(ctx context.Context, task async.Task[ocr.Recognition]) <-chan async.Outcome[ocr.Recognition]
}

// RecognitionCache remembers recognized pages by content hash.
type RecognitionCache interface {
	Get(ctx context.Context, key string) (ocr.Recognition, bool, error)
	Set(ctx context.Context, key string, rec ocr.Recognition) error
}

// ProgressSink receives the job's state transitions.
type ProgressSink interface {
	Update(id, status string, progress int, result any)
	DestroyAfter(id string, delay time.Duration) *time.Timer
}
