package ledger

import "fmt"

// MintID is the reserved sender of balance grants. Transactions sent by the
// mint are applied unconditionally.
const MintID int64 = -1

// Transaction moves Amount from SenderID to TargetID. Nonce disambiguates
// otherwise identical transfers. Transaction is a comparable value: two
// transactions are the same transaction iff all their fields match.
type Transaction struct {
	SenderID int64
	TargetID int64
	Amount   int64
	Nonce    int64
}

// NewMintTransaction returns a grant of amount to target.
func NewMintTransaction(target, amount, nonce int64) Transaction {
	return Transaction{
		SenderID: MintID,
		TargetID: target,
		Amount:   amount,
		Nonce:    nonce,
	}
}

// IsMint returns true if the transaction is issued by the mint.
func (tx Transaction) IsMint() bool {
	return tx.SenderID == MintID
}

// Involves returns true if id is the sender or the target of the transaction.
func (tx Transaction) Involves(id int64) bool {
	return tx.SenderID == id || tx.TargetID == id
}

func (tx Transaction) String() string {
	return fmt.Sprintf("%d->%d:%d#%d", tx.SenderID, tx.TargetID, tx.Amount, tx.Nonce)
}
