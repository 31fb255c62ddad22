package pool

import (
	"reflect"
	"testing"

	"github.com/mosaicnetworks/stakeledger/src/ledger"
)

func tx(sender, target, amount, nonce int64) ledger.Transaction {
	return ledger.Transaction{SenderID: sender, TargetID: target, Amount: amount, Nonce: nonce}
}

// checkDisjoint fails if a transaction shows up in more than one set.
func checkDisjoint(t *testing.T, p *Pool) {
	t.Helper()

	seen := make(map[ledger.Transaction]string)
	for name, set := range map[string]*txSet{
		"buffered":  p.buffered,
		"pending":   p.pending,
		"finalized": p.finalized,
	} {
		for el := set.Front(); el != nil; el = el.Next() {
			if other, ok := seen[el.Key]; ok {
				t.Fatalf("%v is both %s and %s", el.Key, other, name)
			}
			seen[el.Key] = name
		}
	}
}

func TestSubmitDeduplicates(t *testing.T) {
	p := NewPool()

	a := tx(2, 4, 100, 1)

	if !p.Submit(a) {
		t.Fatalf("first submission should be accepted")
	}

	if p.Submit(a) {
		t.Fatalf("duplicate buffered submission should be refused")
	}

	p.Flush()
	if p.Submit(a) {
		t.Fatalf("duplicate pending submission should be refused")
	}

	p.Finalize(a)
	if p.Submit(a) {
		t.Fatalf("duplicate finalized submission should be refused")
	}

	// Same fields except the nonce is a different transaction.
	if !p.Submit(tx(2, 4, 100, 2)) {
		t.Fatalf("transaction with a different nonce should be accepted")
	}

	checkDisjoint(t, p)
}

func TestFlushKeepsOrder(t *testing.T) {
	p := NewPool()

	submitted := []ledger.Transaction{tx(2, 4, 1, 1), tx(4, 2, 2, 1), tx(2, 4, 3, 2)}
	for _, s := range submitted {
		p.Submit(s)
	}

	flushed := p.Flush()
	if !reflect.DeepEqual(flushed, submitted) {
		t.Fatalf("flushed should be %v, not %v", submitted, flushed)
	}

	if again := p.Flush(); len(again) != 0 {
		t.Fatalf("second flush should be empty, got %v", again)
	}

	stats := p.Stats()
	if stats.Buffered != 0 || stats.Pending != 3 {
		t.Fatalf("stats should be 0 buffered and 3 pending, got %+v", stats)
	}

	checkDisjoint(t, p)
}

func TestMergeReturnsNewlyAccepted(t *testing.T) {
	p := NewPool()

	known := tx(2, 4, 10, 1)
	buffered := tx(2, 4, 10, 2)
	done := tx(2, 4, 10, 3)
	fresh := tx(2, 4, 10, 4)

	p.Submit(known)
	p.Flush()
	p.Submit(buffered)
	p.Submit(done)
	p.Finalize(done)

	accepted := p.Merge([]ledger.Transaction{known, buffered, done, fresh, fresh})

	expected := []ledger.Transaction{buffered, fresh}
	if !reflect.DeepEqual(accepted, expected) {
		t.Fatalf("accepted should be %v, not %v", expected, accepted)
	}

	if s := p.Status(buffered); s != Pending {
		t.Fatalf("buffered transaction should be promoted to Pending, not %s", s)
	}

	if s := p.Status(done); s != Finalized {
		t.Fatalf("finalized transaction should stay Finalized, not %s", s)
	}

	checkDisjoint(t, p)
}

func TestPendingBatch(t *testing.T) {
	p := NewPool()
	for i := int64(0); i < 8; i++ {
		p.Submit(tx(2, 4, 1, i))
	}
	p.Flush()

	batch := p.Pending(5)
	if len(batch) != 5 {
		t.Fatalf("batch should contain 5 transactions, not %d", len(batch))
	}

	for i, b := range batch {
		if b.Nonce != int64(i) {
			t.Fatalf("batch[%d] should have nonce %d, not %d", i, i, b.Nonce)
		}
	}

	if all := p.Pending(0); len(all) != 8 {
		t.Fatalf("Pending(0) should return all 8 transactions, not %d", len(all))
	}
}

func TestRequeueMovesToBack(t *testing.T) {
	p := NewPool()
	a, b := tx(2, 4, 1, 1), tx(2, 4, 1, 2)
	p.Submit(a)
	p.Submit(b)
	p.Flush()

	if !p.Requeue(a) {
		t.Fatalf("pending transaction should be requeued")
	}

	if pending := p.Pending(0); !reflect.DeepEqual(pending, []ledger.Transaction{b, a}) {
		t.Fatalf("requeued transaction should move to the back, got %v", pending)
	}

	// A transaction from a block that never reached us through gossip.
	c := tx(4, 2, 1, 1)
	if !p.Requeue(c) {
		t.Fatalf("unknown transaction should be requeued")
	}

	if s := p.Status(c); s != Pending {
		t.Fatalf("requeued transaction should be Pending, not %s", s)
	}

	p.Finalize(a)
	if p.Requeue(a) {
		t.Fatalf("finalized transaction should not be requeued")
	}

	checkDisjoint(t, p)
}

func TestFinalizeOnce(t *testing.T) {
	p := NewPool()
	a := tx(2, 4, 1, 1)
	p.Submit(a)

	if !p.Finalize(a) {
		t.Fatalf("first finalization should succeed")
	}

	if p.Finalize(a) {
		t.Fatalf("second finalization should be refused")
	}

	if f := p.FinalizedTransactions(); !reflect.DeepEqual(f, []ledger.Transaction{a}) {
		t.Fatalf("finalized should contain a exactly once, got %v", f)
	}

	checkDisjoint(t, p)
}

func TestDrop(t *testing.T) {
	p := NewPool()
	a := tx(2, 4, 0, 1)
	p.Submit(a)
	p.Flush()
	p.Drop(a)

	if s := p.Status(a); s != Unknown {
		t.Fatalf("dropped transaction should be Unknown, not %s", s)
	}
}
