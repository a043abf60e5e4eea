package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (p *recordingProcessor) Process(ctx context.Context, job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, job.ID)
	return p.err
}

func (p *recordingProcessor) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func TestProcessorQueue_ProcessesAllJobs(t *testing.T) {
	proc := &recordingProcessor{}
	q := NewProcessorQueue(proc, nil, WithWorkers(2), WithQueueSize(4))

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: id}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, proc.ids())
}

func TestProcessorQueue_FailuresDoNotStopWorkers(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("pipeline failed")}
	q := NewProcessorQueue(proc, nil, WithWorkers(1))

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "x"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "y"}))
	q.Shutdown(context.Background())

	assert.Equal(t, []string{"x", "y"}, proc.ids())
}

func TestProcessorQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&recordingProcessor{}, nil)
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{ID: "late"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

type deadlineProcessor struct {
	hasDeadline chan bool
}

func (p *deadlineProcessor) Process(ctx context.Context, job Job) error {
	_, ok := ctx.Deadline()
	p.hasDeadline <- ok
	return nil
}

func TestProcessorQueue_ProcessTimeout(t *testing.T) {
	t.Run("no timeout by default", func(t *testing.T) {
		proc := &deadlineProcessor{hasDeadline: make(chan bool, 1)}
		q := NewProcessorQueue(proc, nil)
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: "j"}))
		assert.False(t, <-proc.hasDeadline)
		q.Shutdown(context.Background())
	})

	t.Run("configured timeout", func(t *testing.T) {
		proc := &deadlineProcessor{hasDeadline: make(chan bool, 1)}
		q := NewProcessorQueue(proc, nil, WithProcessTimeout(time.Minute))
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: "j"}))
		assert.True(t, <-proc.hasDeadline)
		q.Shutdown(context.Background())
	})
}

type blockingProcessor struct {
	started chan string
	release chan struct{}
}

func (p *blockingProcessor) Process(ctx context.Context, job Job) error {
	p.started <- job.ID
	<-p.release
	return nil
}

func TestProcessorQueue_FullQueueHonorsCallerContext(t *testing.T) {
	proc := &blockingProcessor{started: make(chan string, 4), release: make(chan struct{})}
	q := NewProcessorQueue(proc, nil, WithWorkers(1), WithQueueSize(1))

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "a"}))
	assert.Equal(t, "a", <-proc.started)
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "b"}))
	assert.Equal(t, 1, q.Pending())

	blocked := make(chan error, 1)
	go func() { blocked <- q.Enqueue(context.Background(), Job{ID: "c"}) }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := q.Enqueue(ctx, Job{ID: "d"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelShutdown()
	start = time.Now()
	q.Shutdown(shutdownCtx)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked Enqueue did not return after Shutdown")
	}

	close(proc.release)
	select {
	case id := <-proc.started:
		assert.Equal(t, "b", id)
	case <-time.After(time.Second):
		t.Fatal("buffered job was not processed")
	}
}
