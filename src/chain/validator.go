package chain

import (
	"bytes"
	"fmt"

	"github.com/mosaicnetworks/stakeledger/src/crypto"
	"github.com/mosaicnetworks/stakeledger/src/ledger"
)

// ValidatorFunc is a predicate run on every block received from another
// validator, after the linkage check. A non-nil error rejects the block.
type ValidatorFunc func(b *Block) error

// checkLinkage verifies that b extends last, or is the genesis block when
// last is nil.
func checkLinkage(last *Block, b *Block) error {
	if last == nil {
		if b.Height != 1 {
			return NewChainErr(InvalidHeight, b.Height, "expected 1")
		}
		if !bytes.Equal(b.PrevHash, GenesisPrevHash) {
			return NewChainErr(InvalidPrevHash, b.Height, "expected genesis sentinel")
		}
		return nil
	}

	if b.Height != last.Height+1 {
		return NewChainErr(InvalidHeight, b.Height, fmt.Sprintf("expected %d", last.Height+1))
	}

	lastHash, err := last.Hash()
	if err != nil {
		return err
	}

	if !bytes.Equal(b.PrevHash, lastHash) {
		return NewChainErr(InvalidPrevHash, b.Height,
			fmt.Sprintf("expected %s, got %s", crypto.ShortHex(lastHash), crypto.ShortHex(b.PrevHash)))
	}

	return nil
}

// NoDuplicateTransactions refuses blocks that include the same transaction
// more than once.
func NoDuplicateTransactions(b *Block) error {
	seen := make(map[ledger.Transaction]struct{}, len(b.Transactions))
	for _, tx := range b.Transactions {
		if _, ok := seen[tx]; ok {
			return NewChainErr(DuplicateTransaction, b.Height, tx.String())
		}
		seen[tx] = struct{}{}
	}
	return nil
}

// NoFinalizedTransactions returns a ValidatorFunc that refuses blocks
// including a transaction for which finalized returns true.
func NoFinalizedTransactions(finalized func(ledger.Transaction) bool) ValidatorFunc {
	return func(b *Block) error {
		for _, tx := range b.Transactions {
			if finalized(tx) {
				return NewChainErr(FinalizedTransaction, b.Height, tx.String())
			}
		}
		return nil
	}
}
