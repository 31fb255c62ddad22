package state

import (
	"sync/atomic"
	"testing"
)

func TestManager(t *testing.T) {
	var m Manager

	if m.GetState() != Announcing {
		t.Fatalf("initial state should be Announcing, not %s", m.GetState())
	}

	m.SetState(Validating)
	if m.GetState() != Validating {
		t.Fatalf("state should be Validating, not %s", m.GetState())
	}

	var count int32
	for i := 0; i < 5; i++ {
		m.GoFunc(func() { atomic.AddInt32(&count, 1) })
	}
	m.WaitRoutines()

	if count != 5 {
		t.Fatalf("5 routines should have run, not %d", count)
	}

	if State(42).String() != "Unknown" {
		t.Fatalf("unexpected state string")
	}
}
