package node

import (
	"sync"
	"time"
)

// Names of the periodic tasks of a validator.
const (
	TaskGossipFlush = "gossip_flush"
	TaskElection    = "election"
	TaskLeader      = "leader"
)

// Fired is the notification that a scheduled task is due.
type Fired struct {
	Name string
	gen  uint64
}

type scheduledTask struct {
	gen      uint64
	interval time.Duration
	timer    *time.Timer
}

// Scheduler runs named timers on behalf of the node loop. Timers never run
// any code themselves: when a task is due, a Fired notification is sent on
// the channel returned by FiredCh, and the loop executes the task after
// checking it with Accept. A task that was cancelled or re-armed after it
// fired is refused by Accept, so stale notifications have no effect.
type Scheduler struct {
	sync.Mutex
	tasks map[string]*scheduledTask
	gen   uint64

	firedCh    chan Fired
	shutdownCh chan struct{}
	shutdown   bool
}

// NewScheduler ...
func NewScheduler() *Scheduler {
	return &Scheduler{
		tasks:      make(map[string]*scheduledTask),
		firedCh:    make(chan Fired),
		shutdownCh: make(chan struct{}),
	}
}

// Every arms a periodic task that first fires after delay, then every
// interval.
func (s *Scheduler) Every(name string, delay, interval time.Duration) {
	s.arm(name, delay, interval)
}

// After arms a one-shot task. Arming a task that is already armed replaces
// it.
func (s *Scheduler) After(name string, d time.Duration) {
	s.arm(name, d, 0)
}

func (s *Scheduler) arm(name string, delay, interval time.Duration) {
	s.Lock()
	defer s.Unlock()

	if s.shutdown {
		return
	}

	if t, ok := s.tasks[name]; ok {
		t.timer.Stop()
	}

	s.gen++
	gen := s.gen

	t := &scheduledTask{
		gen:      gen,
		interval: interval,
	}
	t.timer = time.AfterFunc(delay, func() { s.fire(name, gen) })

	s.tasks[name] = t
}

func (s *Scheduler) fire(name string, gen uint64) {
	s.Lock()
	t, ok := s.tasks[name]
	if !ok || t.gen != gen || s.shutdown {
		s.Unlock()
		return
	}
	if t.interval > 0 {
		t.timer.Reset(t.interval)
	}
	s.Unlock()

	select {
	case s.firedCh <- Fired{Name: name, gen: gen}:
	case <-s.shutdownCh:
	}
}

// FiredCh returns the channel of due tasks.
func (s *Scheduler) FiredCh() <-chan Fired {
	return s.firedCh
}

// Accept returns true if f refers to the current instance of its task. An
// accepted one-shot task is forgotten.
func (s *Scheduler) Accept(f Fired) bool {
	s.Lock()
	defer s.Unlock()

	t, ok := s.tasks[f.Name]
	if !ok || t.gen != f.gen {
		return false
	}

	if t.interval == 0 {
		delete(s.tasks, f.Name)
	}

	return true
}

// Cancel disarms a task.
func (s *Scheduler) Cancel(name string) {
	s.Lock()
	defer s.Unlock()

	if t, ok := s.tasks[name]; ok {
		t.timer.Stop()
		delete(s.tasks, name)
	}
}

// Armed returns true if the task is armed.
func (s *Scheduler) Armed(name string) bool {
	s.Lock()
	defer s.Unlock()

	_, ok := s.tasks[name]
	return ok
}

// Shutdown stops all the timers.
func (s *Scheduler) Shutdown() {
	s.Lock()
	defer s.Unlock()

	if s.shutdown {
		return
	}
	s.shutdown = true

	for name, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, name)
	}

	close(s.shutdownCh)
}
