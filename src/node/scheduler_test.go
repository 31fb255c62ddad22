package node

import (
	"testing"
	"time"
)

func nextFired(t *testing.T, s *Scheduler, timeout time.Duration) (Fired, bool) {
	t.Helper()
	select {
	case f := <-s.FiredCh():
		return f, true
	case <-time.After(timeout):
		return Fired{}, false
	}
}

func TestSchedulerAfter(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	s.After("once", 5*time.Millisecond)

	f, ok := nextFired(t, s, time.Second)
	if !ok || f.Name != "once" {
		t.Fatalf("once should fire")
	}

	if !s.Accept(f) {
		t.Fatalf("fired task should be accepted")
	}

	if s.Armed("once") {
		t.Fatalf("accepted one-shot task should be forgotten")
	}

	if s.Accept(f) {
		t.Fatalf("one-shot task should only be accepted once")
	}
}

func TestSchedulerEvery(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	s.Every("tick", time.Millisecond, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		f, ok := nextFired(t, s, time.Second)
		if !ok || !s.Accept(f) {
			t.Fatalf("tick %d should fire and be accepted", i)
		}
	}

	s.Cancel("tick")

	// A tick that fired before Cancel may still be in flight.
	if f, ok := nextFired(t, s, 20*time.Millisecond); ok && s.Accept(f) {
		t.Fatalf("cancelled task should not be accepted")
	}
}

func TestSchedulerRearm(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	s.After("grace", time.Millisecond)

	f, ok := nextFired(t, s, time.Second)
	if !ok {
		t.Fatalf("grace should fire")
	}

	// Re-armed after firing but before the loop handled it.
	s.After("grace", time.Hour)

	if s.Accept(f) {
		t.Fatalf("stale notification should be refused")
	}

	if !s.Armed("grace") {
		t.Fatalf("re-armed task should still be armed")
	}
}

func TestSchedulerShutdown(t *testing.T) {
	s := NewScheduler()

	s.Every("tick", time.Millisecond, time.Millisecond)
	s.Shutdown()
	s.Shutdown()

	s.After("late", time.Millisecond)
	if s.Armed("tick") || s.Armed("late") {
		t.Fatalf("no task should be armed after shutdown")
	}
}
