package election

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/stakeledger/src/common"
	"github.com/mosaicnetworks/stakeledger/src/net"
)

type envelope struct {
	from int64
	to   int64
	msg  interface{}
}

// bus delivers the messages broadcast by a set of elections, one at a time
// and in the order they were sent.
type bus struct {
	ids   []int64
	queue []envelope
}

type busBroadcaster struct {
	bus  *bus
	from int64
}

func (b *busBroadcaster) Broadcast(msg interface{}, exclude ...int64) {
	for _, id := range b.bus.ids {
		if id == b.from || contains(exclude, id) {
			continue
		}
		b.bus.queue = append(b.bus.queue, envelope{b.from, id, msg})
	}
}

func contains(ids []int64, id int64) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

func (b *bus) drain(t *testing.T, elections map[int64]*Election) {
	for len(b.queue) > 0 {
		env := b.queue[0]
		b.queue = b.queue[1:]

		var err error
		switch m := env.msg.(type) {
		case net.AnnounceParticipation:
			err = elections[env.to].HandleParticipation(m)
		case net.AnnounceWinner:
			err = elections[env.to].HandleWinner(m, env.from)
		}
		if err != nil {
			t.Fatalf("validator %d: %v", env.to, err)
		}
	}
}

func TestElectionAgreement(t *testing.T) {
	ids := []int64{1, 2, 3, 4}
	b := &bus{ids: ids}

	elections := make(map[int64]*Election)
	schedulers := make(map[int64]*fakeScheduler)

	for _, id := range ids {
		sched := newFakeScheduler()
		schedulers[id] = sched
		elections[id] = NewElection(
			Config{
				ID:            id,
				Stake:         id * 100,
				AnnounceGrace: time.Millisecond,
				ElectGrace:    time.Millisecond,
			},
			func() int { return len(ids) },
			&busBroadcaster{bus: b, from: id},
			sched,
			common.NewTestEntry(t, common.TestLogLevel),
		)
	}

	for round := int64(0); round < 5; round++ {
		if err := elections[1].Start(); err != nil {
			t.Fatalf("err: %v", err)
		}
		b.drain(t, elections)

		for _, id := range ids {
			if schedulers[id].isArmed(TaskAnnounceWinner) {
				if err := elections[id].AnnounceWinner(); err != nil {
					t.Fatalf("validator %d: %v", id, err)
				}
			}
		}
		b.drain(t, elections)

		for _, id := range ids {
			if elections[id].Phase() != ElectGrace {
				t.Fatalf("validator %d should be in ElectGrace, not %s", id, elections[id].Phase())
			}
			if err := elections[id].Ratify(); err != nil {
				t.Fatalf("validator %d: %v", id, err)
			}
		}

		expected := Draw(NewSource(1000), stakesOf(1, 100, 2, 200, 3, 300, 4, 400))

		for _, id := range ids {
			leader, ok := elections[id].Leader()
			if !ok || leader != expected {
				t.Fatalf("round %d: validator %d elected %d, expected %d", round, id, leader, expected)
			}
			if elections[id].Round() != round+1 {
				t.Fatalf("validator %d should be in round %d, not %d", id, round+1, elections[id].Round())
			}
		}
	}
}
