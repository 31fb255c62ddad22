// Package pool holds the transactions a validator knows about and tracks where
// each of them is in its lifecycle.
//
// A transaction enters the pool as Buffered when it is first seen, becomes
// Pending once it has been gossiped to the other validators (or was received
// through gossip), and ends up Finalized when a block containing it is applied
// to the ledger. A transaction that could not be applied goes back to Pending.
// At any point in time a transaction belongs to at most one of these sets.
package pool

import (
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/mosaicnetworks/stakeledger/src/ledger"
)

// Status is the lifecycle stage of a transaction within a Pool.
type Status uint8

const (
	// Unknown means the pool has never seen the transaction.
	Unknown Status = iota
	// Buffered transactions have been seen but not gossiped yet.
	Buffered
	// Pending transactions are waiting to be included in a block.
	Pending
	// Finalized transactions belong to a block that was applied to the ledger.
	Finalized
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Buffered:
		return "Buffered"
	case Pending:
		return "Pending"
	case Finalized:
		return "Finalized"
	default:
		return "Invalid"
	}
}

type txSet = orderedmap.OrderedMap[ledger.Transaction, struct{}]

// Pool is the transaction pool of a validator. The mutex guards every
// read-modify-write sequence over the three sets, so a periodic flush never
// observes a half-applied submission.
type Pool struct {
	sync.Mutex

	buffered  *txSet
	pending   *txSet
	finalized *txSet
}

// Stats is a snapshot of the sizes of the pool's sets.
type Stats struct {
	Buffered  int
	Pending   int
	Finalized int
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{
		buffered:  orderedmap.NewOrderedMap[ledger.Transaction, struct{}](),
		pending:   orderedmap.NewOrderedMap[ledger.Transaction, struct{}](),
		finalized: orderedmap.NewOrderedMap[ledger.Transaction, struct{}](),
	}
}

func (p *Pool) status(tx ledger.Transaction) Status {
	if _, ok := p.finalized.Get(tx); ok {
		return Finalized
	}
	if _, ok := p.pending.Get(tx); ok {
		return Pending
	}
	if _, ok := p.buffered.Get(tx); ok {
		return Buffered
	}
	return Unknown
}

// Status returns the lifecycle stage of tx.
func (p *Pool) Status(tx ledger.Transaction) Status {
	p.Lock()
	defer p.Unlock()

	return p.status(tx)
}

// Submit adds tx to the buffered set. It returns false, and does nothing, if
// the transaction is already buffered, pending or finalized.
func (p *Pool) Submit(tx ledger.Transaction) bool {
	p.Lock()
	defer p.Unlock()

	if p.status(tx) != Unknown {
		return false
	}

	p.buffered.Set(tx, struct{}{})

	return true
}

// Flush moves every buffered transaction to the pending set and returns them
// in the order they were submitted.
func (p *Pool) Flush() []ledger.Transaction {
	p.Lock()
	defer p.Unlock()

	flushed := keys(p.buffered, 0)

	for _, tx := range flushed {
		p.buffered.Delete(tx)
		p.pending.Set(tx, struct{}{})
	}

	return flushed
}

// Merge adds gossiped transactions to the pending set. Transactions that are
// already pending or finalized are skipped; a buffered transaction is promoted
// to pending. Merge returns the newly accepted transactions, which are the
// only ones worth relaying.
func (p *Pool) Merge(txs []ledger.Transaction) []ledger.Transaction {
	p.Lock()
	defer p.Unlock()

	accepted := []ledger.Transaction{}

	for _, tx := range txs {
		switch p.status(tx) {
		case Pending, Finalized:
			continue
		case Buffered:
			p.buffered.Delete(tx)
		}

		p.pending.Set(tx, struct{}{})
		accepted = append(accepted, tx)
	}

	return accepted
}

// Pending returns the first n pending transactions, or all of them if n <= 0.
func (p *Pool) Pending(n int) []ledger.Transaction {
	p.Lock()
	defer p.Unlock()

	return keys(p.pending, n)
}

// PendingLen returns the number of pending transactions.
func (p *Pool) PendingLen() int {
	p.Lock()
	defer p.Unlock()

	return p.pending.Len()
}

// Finalize marks tx as finalized, removing it from the buffered or pending
// set. It returns false if tx was already finalized.
func (p *Pool) Finalize(tx ledger.Transaction) bool {
	p.Lock()
	defer p.Unlock()

	switch p.status(tx) {
	case Finalized:
		return false
	case Pending:
		p.pending.Delete(tx)
	case Buffered:
		p.buffered.Delete(tx)
	}

	p.finalized.Set(tx, struct{}{})

	return true
}

// Requeue puts tx back at the end of the pending set, so that it is retried
// after the transactions that were waiting before it. Finalized transactions
// are left alone and false is returned.
func (p *Pool) Requeue(tx ledger.Transaction) bool {
	p.Lock()
	defer p.Unlock()

	switch p.status(tx) {
	case Finalized:
		return false
	case Pending:
		p.pending.Delete(tx)
	case Buffered:
		p.buffered.Delete(tx)
	}

	p.pending.Set(tx, struct{}{})

	return true
}

// Drop forgets a transaction that can never be applied.
func (p *Pool) Drop(tx ledger.Transaction) {
	p.Lock()
	defer p.Unlock()

	p.buffered.Delete(tx)
	p.pending.Delete(tx)
}

// FinalizedTransactions returns the finalized transactions in the order they
// were applied.
func (p *Pool) FinalizedTransactions() []ledger.Transaction {
	p.Lock()
	defer p.Unlock()

	return keys(p.finalized, 0)
}

// Stats returns the sizes of the three sets.
func (p *Pool) Stats() Stats {
	p.Lock()
	defer p.Unlock()

	return Stats{
		Buffered:  p.buffered.Len(),
		Pending:   p.pending.Len(),
		Finalized: p.finalized.Len(),
	}
}

func keys(set *txSet, n int) []ledger.Transaction {
	size := set.Len()
	if n > 0 && n < size {
		size = n
	}

	res := make([]ledger.Transaction, 0, size)
	for el := set.Front(); el != nil && len(res) < size; el = el.Next() {
		res = append(res, el.Key)
	}
	return res
}
