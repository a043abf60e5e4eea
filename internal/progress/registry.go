// Package progress tracks in-flight analyses and fans their state changes
// out to subscribers.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

// Event is one published state change. Data stays nil until Progress is 100.
type Event struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Data     any    `json:"data"`
}

// Snapshot is a point-in-time copy of a job's visible state.
type Snapshot struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Result    any       `json:"result"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event converts the snapshot to the payload shape subscribers receive.
func (s Snapshot) Event() Event {
	ev := Event{Status: s.Status, Progress: s.Progress}
	if s.Progress >= constants.ProgressDone {
		ev.Data = s.Result
	}
	return ev
}

// Terminal reports whether the job has published its final update.
func (s Snapshot) Terminal() bool { return s.Progress >= constants.ProgressDone }

type entry struct {
	mu   sync.Mutex
	snap Snapshot
	subs map[*Subscription]struct{}
}

// Registry is the process-wide table of jobs. The map lock only guards
// membership; each job's fields and subscribers sit behind that job's lock.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*entry
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		jobs:   make(map[string]*entry),
		logger: logger,
		now:    time.Now,
	}
}

// Create inserts a new job at 0%. It fails with ErrDuplicateJob if id exists.
func (r *Registry) Create(id string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[id]; exists {
		return Snapshot{}, common.NewAppError(common.CodeDuplicateJob, "job "+id+" already exists", common.ErrDuplicateJob)
	}
	now := r.now()
	e := &entry{
		snap: Snapshot{
			ID:        id,
			Status:    constants.StatusStarting,
			Progress:  constants.ProgressStarted,
			CreatedAt: now,
			UpdatedAt: now,
		},
		subs: make(map[*Subscription]struct{}),
	}
	r.jobs[id] = e
	r.logger.Debug("progress.job.created", "job_id", id)
	return e.snap, nil
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[id]
}

// Update replaces the job's status, progress and result and delivers the new
// state to every current subscriber before returning. Unknown ids are ignored.
// Progress is clamped so it never decreases, and nothing is accepted after
// the terminal (100%) update.
func (r *Registry) Update(id, status string, progress int, result any) {
	e := r.lookup(id)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.snap.Terminal() {
		r.logger.Warn("progress.update.after_terminal", "job_id", id, "status", status, "progress", progress)
		return
	}
	if progress > constants.ProgressDone {
		progress = constants.ProgressDone
	}
	if progress < e.snap.Progress {
		progress = e.snap.Progress
	}

	e.snap.Status = status
	e.snap.Progress = progress
	e.snap.UpdatedAt = r.now()
	if progress >= constants.ProgressDone {
		e.snap.Result = result
	}

	ev := e.snap.Event()
	for sub := range e.subs {
		sub.push(ev)
	}
}

// Subscribe returns the job's current state and a stream of every later update.
func (r *Registry) Subscribe(id string) (Snapshot, *Subscription, error) {
	e := r.lookup(id)
	if e == nil {
		return Snapshot{}, nil, common.NewAppError(common.CodeNotFound, "Analysis not found", common.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sub := newSubscription(r, id)
	e.subs[sub] = struct{}{}
	return e.snap, sub, nil
}

// Unsubscribe detaches sub. Safe to call repeatedly and after Destroy.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if e := r.lookup(sub.jobID); e != nil {
		e.mu.Lock()
		delete(e.subs, sub)
		e.mu.Unlock()
	}
	sub.stopNow()
}

// Destroy removes the job and closes its streams once their pending events drain.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	e, ok := r.jobs[id]
	delete(r.jobs, id)
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	for sub := range e.subs {
		sub.finish()
	}
	e.subs = nil
	e.mu.Unlock()
	r.logger.Debug("progress.job.destroyed", "job_id", id)
}

// DestroyAfter schedules Destroy once delay has elapsed.
func (r *Registry) DestroyAfter(id string, delay time.Duration) *time.Timer {
	return time.AfterFunc(delay, func() { r.Destroy(id) })
}

// Get returns the job's current state.
func (r *Registry) Get(id string) (Snapshot, bool) {
	e := r.lookup(id)
	if e == nil {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap, true
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
