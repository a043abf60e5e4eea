package async

import (
	"context"
	"sync"
	"time"

	"log/slog"
)

// ProcessorQueue runs analysis jobs on a fixed pool of workers fed by a
// bounded channel. Enqueue blocks when the channel is full.
type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// Senders hold mu for reading while they wait for capacity; Shutdown
	// closes done to release them before taking mu to close ch.
	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	stopOnce sync.Once
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithProcessTimeout bounds a whole analysis. Zero means no bound.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		ch:      make(chan Job, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("analysis.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Debug("analysis.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	q.logger.Info("analysis.worker.picked", "worker_id", workerID, "job_id", job.ID,
		"queued_ms", start.Sub(job.SubmittedAt).Milliseconds())
	if err := q.proc.Process(ctx, job); err != nil {
		q.logger.Error("analysis.worker.failed", "worker_id", workerID, "job_id", job.ID,
			"elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		return
	}
	q.logger.Info("analysis.worker.done", "worker_id", workerID, "job_id", job.ID,
		"elapsed_ms", time.Since(start).Milliseconds())
}

// Enqueue hands job to the worker pool. When the queue is full it waits
// for capacity until ctx is done or Shutdown begins.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("analysis.enqueue.rejected", "job_id", job.ID, "reason", "shutting down")
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("analysis.enqueued", "job_id", job.ID, "file", job.FileName,
			"rules", len(job.Rules), "pending", q.Pending())
		return nil
	default:
	}

	q.logger.Warn("analysis.queue.full", "job_id", job.ID, "capacity", cap(q.ch))
	select {
	case q.ch <- job:
		q.logger.Info("analysis.enqueued", "job_id", job.ID, "file", job.FileName,
			"rules", len(job.Rules), "pending", q.Pending())
		return nil
	case <-q.done:
		q.logger.Warn("analysis.enqueue.rejected", "job_id", job.ID, "reason", "shutting down")
		return ErrQueueClosed
	case <-ctx.Done():
		q.logger.Warn("analysis.enqueue.abandoned", "job_id", job.ID, "error", ctx.Err())
		return ctx.Err()
	}
}

// Pending returns the number of jobs waiting for a worker.
func (q *ProcessorQueue) Pending() int { return len(q.ch) }

// Shutdown stops accepting jobs and waits for the workers to drain what
// was already queued, or for ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	first := false
	q.stopOnce.Do(func() {
		first = true
		close(q.done)
		// blocked senders leave on done, so the write lock is short
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
	if !first {
		return
	}

	drained := make(chan struct{})
	go func() { defer close(drained); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("analysis.queue.shutdown_interrupted", "pending", q.Pending())
	case <-drained:
		q.logger.Info("analysis.queue.drained")
	}
}
