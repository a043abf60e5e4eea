package async

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned once Shutdown has begun.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one accepted analysis waiting for a pipeline worker.
type Job struct {
	ID          string
	FilePath    string
	FileName    string
	Rules       []string
	SubmittedAt time.Time
	TraceID     string
}

// Processor runs one analysis job to its terminal state.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
