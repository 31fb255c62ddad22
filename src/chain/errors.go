package chain

import (
	"errors"
	"fmt"
)

// ChainErrType ...
type ChainErrType uint32

const (
	// KnownBlock means the block is already part of the chain.
	KnownBlock ChainErrType = iota
	// InvalidHeight means the block doesn't extend the last block.
	InvalidHeight
	// InvalidPrevHash means the block doesn't link to the last block.
	InvalidPrevHash
	// DuplicateTransaction means the block contains a transaction twice.
	DuplicateTransaction
	// FinalizedTransaction means the block contains a transaction that was
	// already applied to the ledger.
	FinalizedTransaction
	// UnknownBlock means a vote references a height we have no block for.
	UnknownBlock
	// HashMismatch means a vote references a different block than ours.
	HashMismatch
	// ActiveProposal means the leader is still waiting for its previous
	// proposal to be finalized.
	ActiveProposal
)

// ChainErr is returned when a block or a vote is refused.
type ChainErr struct {
	errType ChainErrType
	height  int64
	detail  string
}

// NewChainErr ...
func NewChainErr(errType ChainErrType, height int64, detail string) ChainErr {
	return ChainErr{
		errType: errType,
		height:  height,
		detail:  detail,
	}
}

// Type returns the kind of error.
func (e ChainErr) Type() ChainErrType {
	return e.errType
}

// Error ...
func (e ChainErr) Error() string {
	m := ""
	switch e.errType {
	case KnownBlock:
		m = "Known Block"
	case InvalidHeight:
		m = "Invalid Height"
	case InvalidPrevHash:
		m = "Invalid PrevHash"
	case DuplicateTransaction:
		m = "Duplicate Transaction"
	case FinalizedTransaction:
		m = "Finalized Transaction"
	case UnknownBlock:
		m = "Unknown Block"
	case HashMismatch:
		m = "Hash Mismatch"
	case ActiveProposal:
		m = "Active Proposal"
	}

	if e.detail != "" {
		return fmt.Sprintf("block %d, %s: %s", e.height, m, e.detail)
	}
	return fmt.Sprintf("block %d, %s", e.height, m)
}

// IsChain checks that an error is, or wraps, a ChainErr of type t.
func IsChain(err error, t ChainErrType) bool {
	var chainErr ChainErr
	return errors.As(err, &chainErr) && chainErr.errType == t
}
