package virt

import (
	"context"
	"sync"
)

// maxFlushTicks bounds Flush so tasks that keep rescheduling themselves
// cannot spin forever.
const maxFlushTicks = 64

// Scheduler is a cooperative task queue. Tasks posted during a tick run on
// the next one, and coalesced tasks occupy a single named slot until they
// run, so a burst of requests results in one execution.
type Scheduler struct {
	mu      sync.Mutex
	queue   []func()
	pending map[string]bool
	wake    chan struct{}
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		pending: make(map[string]bool),
		wake:    make(chan struct{}, 1),
	}
}

// Post appends fn to the queue. It is safe to call from any goroutine.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	s.signal()
}

// Coalesce posts fn unless a task for slot is already waiting. It reports
// whether fn was queued.
func (s *Scheduler) Coalesce(slot string, fn func()) bool {
	s.mu.Lock()
	if s.pending[slot] {
		s.mu.Unlock()
		return false
	}
	s.pending[slot] = true
	s.queue = append(s.queue, func() {
		s.mu.Lock()
		delete(s.pending, slot)
		s.mu.Unlock()
		fn()
	})
	s.mu.Unlock()
	s.signal()
	return true
}

// Pending reports whether a coalesced task for slot is waiting.
func (s *Scheduler) Pending(slot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[slot]
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Tick runs the tasks queued before the call and returns how many ran.
func (s *Scheduler) Tick() int {
	s.mu.Lock()
	tasks := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}

// Flush ticks until the queue is empty.
func (s *Scheduler) Flush() int {
	ran := 0
	for range maxFlushTicks {
		n := s.Tick()
		if n == 0 {
			break
		}
		ran += n
	}
	return ran
}

// Run ticks whenever work is posted, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			s.Tick()
			if s.Len() > 0 {
				s.signal()
			}
		}
	}
}
