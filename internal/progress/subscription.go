package progress

import "sync"

// Subscription is one observer's ordered stream of job events. Pushes never
// block the publisher; a goroutine drains the mailbox into Events().
type Subscription struct {
	reg   *Registry
	jobID string

	mu       sync.Mutex
	queue    []Event
	finished bool

	notify chan struct{}
	stop   chan struct{}
	once   sync.Once
	out    chan Event
}

func newSubscription(reg *Registry, jobID string) *Subscription {
	s := &Subscription{
		reg:    reg,
		jobID:  jobID,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		out:    make(chan Event),
	}
	go s.pump()
	return s
}

// JobID returns the job this subscription observes.
func (s *Subscription) JobID() string { return s.jobID }

// Events yields updates in publish order. It is closed after the job is
// destroyed and pending events have been delivered, or right after Close.
func (s *Subscription) Events() <-chan Event { return s.out }

// Close detaches the subscription from its registry.
func (s *Subscription) Close() { s.reg.Unsubscribe(s) }

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.wake()
}

// finish stops accepting events; queued ones are still delivered.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) stopNow() {
	s.once.Do(func() { close(s.stop) })
	s.finish()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.finished
			s.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-s.notify:
				continue
			case <-s.stop:
				return
			}
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.stop:
			return
		}
	}
}
