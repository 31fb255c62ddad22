package net

import (
	"github.com/mosaicnetworks/stakeledger/src/chain"
	"github.com/mosaicnetworks/stakeledger/src/ledger"
)

// Announcement tells other nodes that SenderID is online, whether it is a
// client or a validator, and where it can be reached. Validators flood new
// announcements so that every node converges on the same registry.
type Announcement struct {
	SenderID int64
	IsClient bool
	NetAddr  string
}

// TransactionBody is a transaction submitted by a client to a validator.
type TransactionBody struct {
	ledger.Transaction
}

// Gossip carries a batch of pending transactions between validators.
type Gossip struct {
	Transactions []ledger.Transaction
}

// AnnounceParticipation registers SenderID's stake for an election round.
// OriginID is the validator that forwarded this copy of the announcement.
type AnnounceParticipation struct {
	Round    int64
	SenderID int64
	Stake    int64
	OriginID int64
}

// AnnounceWinner carries the result of SenderID's local draw for a round.
// Validators ratify a round by comparing these tuples with their own.
type AnnounceWinner struct {
	Round          int64
	SenderID       int64
	WinnerID       int64
	RandomSeed     int64
	ValidatorCount int
}

// Block is a block proposal.
type Block struct {
	chain.Block
}

// BlockVote is a validator's confirmation of a block. The voter is the
// sender of the message.
type BlockVote struct {
	Height    int64
	BlockHash []byte
}

// Notification tells a client that a transaction involving it was finalized
// in the block at Height.
type Notification struct {
	Transaction ledger.Transaction
	Height      int64
}
