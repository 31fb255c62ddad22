// Package ledger implements the in-memory balance ledger of a validator.
//
// A Ledger maps account ids to integer balances. It is only mutated through
// Apply, which either moves the whole amount from sender to target or leaves
// every balance untouched. Balances are never negative: Apply checks funds
// before debiting instead of clamping afterwards.
package ledger

import (
	"sort"
	"sync"
)

// Ledger is a mapping of account id to balance. Reads are safe from any
// goroutine; Apply is expected to be called from the owning node's loop.
type Ledger struct {
	sync.RWMutex
	balances map[int64]int64
	minted   int64
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[int64]int64),
	}
}

// Open creates a zero balance entry for id if it doesn't have one yet.
func (l *Ledger) Open(id int64) {
	l.Lock()
	defer l.Unlock()

	if _, ok := l.balances[id]; !ok {
		l.balances[id] = 0
	}
}

// Apply debits the sender and credits the target of tx. Mint transactions
// succeed unconditionally. If the sender cannot cover the amount, an
// InsufficientFundsError is returned and no balance is modified.
func (l *Ledger) Apply(tx Transaction) error {
	if tx.Amount <= 0 {
		return ErrInvalidAmount
	}

	l.Lock()
	defer l.Unlock()

	if tx.IsMint() {
		l.balances[tx.TargetID] += tx.Amount
		l.minted += tx.Amount
		return nil
	}

	balance := l.balances[tx.SenderID]
	if balance < tx.Amount {
		return InsufficientFundsError{Tx: tx, Balance: balance}
	}

	l.balances[tx.SenderID] = balance - tx.Amount
	l.balances[tx.TargetID] += tx.Amount

	return nil
}

// Balance returns the balance of id, 0 if the account is unknown.
func (l *Ledger) Balance(id int64) int64 {
	l.RLock()
	defer l.RUnlock()

	return l.balances[id]
}

// Balances returns a copy of all the balances.
func (l *Ledger) Balances() map[int64]int64 {
	l.RLock()
	defer l.RUnlock()

	res := make(map[int64]int64, len(l.balances))
	for id, b := range l.balances {
		res[id] = b
	}
	return res
}

// Accounts returns the known account ids in ascending order.
func (l *Ledger) Accounts() []int64 {
	l.RLock()
	defer l.RUnlock()

	ids := make([]int64, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Total returns the sum of all balances. The mint has no balance entry, so the
// total only changes when the mint issues funds.
func (l *Ledger) Total() int64 {
	l.RLock()
	defer l.RUnlock()

	var total int64
	for _, b := range l.balances {
		total += b
	}
	return total
}

// Minted returns the total amount issued by the mint.
func (l *Ledger) Minted() int64 {
	l.RLock()
	defer l.RUnlock()

	return l.minted
}
