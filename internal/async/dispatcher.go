package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

// ErrDispatcherClosed is reported to submissions made after Shutdown.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Task is one unit of work run under the dispatcher's limit. Tasks must
// honor ctx: it carries the per-task deadline.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the result delivered to a task's submitter.
type Outcome[T any] struct {
	Value T
	Err   error
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	Limit     int
	Active    int
	Queued    int
	Peak      int
	Completed int64
	Failed    int64
}

type dispatcherConfig struct {
	name    string
	timeout time.Duration
	limiter *rate.Limiter
}

type DispatcherOption func(*dispatcherConfig)

// WithTaskTimeout sets the hard deadline applied to each task once admitted.
// Time spent waiting in the queue does not count against it.
func WithTaskTimeout(d time.Duration) DispatcherOption {
	return func(c *dispatcherConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit paces task starts to rps per second. Zero disables pacing.
func WithRateLimit(rps float64) DispatcherOption {
	return func(c *dispatcherConfig) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithName labels the dispatcher in logs and timeout errors.
func WithName(name string) DispatcherOption {
	return func(c *dispatcherConfig) {
		if name != "" {
			c.name = name
		}
	}
}

type pending[T any] struct {
	ctx  context.Context
	task Task[T]
	done chan Outcome[T]
	at   time.Time
}

// Dispatcher admits at most limit tasks at once. Extra submissions wait in
// an unbounded FIFO queue and are admitted as running tasks finish. A failed
// task only affects its own submitter.
type Dispatcher[T any] struct {
	cfg    dispatcherConfig
	limit  int
	logger *slog.Logger

	mu        sync.Mutex
	active    int
	peak      int
	queue     []*pending[T]
	closed    bool
	completed int64
	failed    int64

	wg sync.WaitGroup
}

func NewDispatcher[T any](limit int, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 1
	}
	cfg := dispatcherConfig{name: "dispatcher"}
	for _, o := range opts {
		o(&cfg)
	}
	return &Dispatcher[T]{
		cfg:    cfg,
		limit:  limit,
		logger: logger,
	}
}

// Submit queues task and returns a channel that receives exactly one Outcome.
// Submission order is admission order.
func (d *Dispatcher[T]) Submit(ctx context.Context, task Task[T]) <-chan Outcome[T] {
	p := &pending[T]{
		ctx:  ctx,
		task: task,
		done: make(chan Outcome[T], 1),
		at:   time.Now(),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		p.done <- Outcome[T]{Err: ErrDispatcherClosed}
		return p.done
	}
	d.wg.Add(1)
	if d.active < d.limit {
		d.active++
		if d.active > d.peak {
			d.peak = d.active
		}
		d.mu.Unlock()
		go d.run(p)
		return p.done
	}
	d.queue = append(d.queue, p)
	queued := len(d.queue)
	d.mu.Unlock()

	d.logger.Debug("dispatch.queued", "dispatcher", d.cfg.name, "queued", queued)
	return p.done
}

// Do submits task and waits for its outcome.
func (d *Dispatcher[T]) Do(ctx context.Context, task Task[T]) (T, error) {
	out := <-d.Submit(ctx, task)
	return out.Value, out.Err
}

func (d *Dispatcher[T]) run(p *pending[T]) {
	for p != nil {
		out := d.execute(p)
		p.done <- out
		p = d.release(out.Err != nil)
	}
}

// release records a finished task and hands its slot to the next queued
// task, if any, without dropping the active count in between.
func (d *Dispatcher[T]) release(failed bool) *pending[T] {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.wg.Done()

	if failed {
		d.failed++
	} else {
		d.completed++
	}
	if len(d.queue) == 0 {
		d.active--
		return nil
	}
	next := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return next
}

func (d *Dispatcher[T]) execute(p *pending[T]) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch.task.panic", "dispatcher", d.cfg.name, "panic", r)
			out = Outcome[T]{Err: fmt.Errorf("%s task panicked: %v", d.cfg.name, r)}
		}
	}()

	if err := p.ctx.Err(); err != nil {
		return Outcome[T]{Err: err}
	}
	if d.cfg.limiter != nil {
		if err := d.cfg.limiter.Wait(p.ctx); err != nil {
			return Outcome[T]{Err: err}
		}
	}

	ctx := p.ctx
	if d.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, d.cfg.timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := p.task(ctx)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && p.ctx.Err() == nil {
		d.logger.Warn("dispatch.task.timeout", "dispatcher", d.cfg.name,
			"timeout", d.cfg.timeout, "elapsed_ms", time.Since(start).Milliseconds())
		var zero T
		if err == nil {
			err = context.DeadlineExceeded
		}
		return Outcome[T]{Value: zero, Err: common.NewTimeoutError(d.cfg.name, err)}
	}
	d.logger.Debug("dispatch.task.done", "dispatcher", d.cfg.name,
		"wait_ms", start.Sub(p.at).Milliseconds(), "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
	return Outcome[T]{Value: v, Err: err}
}

// Stats returns the current counters.
func (d *Dispatcher[T]) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DispatcherStats{
		Limit:     d.limit,
		Active:    d.active,
		Queued:    len(d.queue),
		Peak:      d.peak,
		Completed: d.completed,
		Failed:    d.failed,
	}
}

// Shutdown stops accepting tasks and waits for admitted and queued ones.
func (d *Dispatcher[T]) Shutdown(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); d.wg.Wait() }()

	select {
	case <-ctx.Done():
		d.logger.Warn("dispatch.shutdown_interrupted", "dispatcher", d.cfg.name)
	case <-done:
		st := d.Stats()
		d.logger.Info("dispatch.drained", "dispatcher", d.cfg.name,
			"peak", st.Peak, "completed", st.Completed, "failed", st.Failed)
	}
}
