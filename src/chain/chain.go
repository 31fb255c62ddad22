// Package chain implements the block lifecycle of a validator: forming
// blocks, validating the blocks proposed by other validators, tallying block
// votes, and deciding when a block has gathered enough votes to be finalized.
//
// A Chain doesn't apply anything to the ledger itself. Once a vote brings a
// block to quorum, the caller applies its transactions and calls Finalize.
//
// Votes
//
// A vote references a block by height and content hash. The hash is
// recomputed from our own copy of the block at that height, and a vote
// claiming a different hash is refused, so that two different blocks proposed
// at the same height can never pool their votes. A block reaches quorum when
// the number of distinct voters for its hash is at least two thirds of the
// validator-set.
//
// Votes for a height above our last block usually mean the vote overtook the
// block on the way. They are held back until the block arrives, up to
// MaxOrphanVotes of them.
package chain

import (
	"sort"

	"github.com/mosaicnetworks/stakeledger/src/crypto"
	"github.com/mosaicnetworks/stakeledger/src/ledger"
)

// MaxOrphanVotes bounds the number of votes held for blocks we haven't
// received yet.
const MaxOrphanVotes = 1024

// Vote is a validator's confirmation of the block with hash BlockHash at
// Height.
type Vote struct {
	Height    int64
	BlockHash []byte
}

type orphanVote struct {
	vote  Vote
	voter int64
}

// Chain is the local view of the blockchain of a validator. It is not safe
// for concurrent use; it belongs to the node's loop.
type Chain struct {
	blocks []*Block
	hashes []string // hex hash of blocks[i]

	// voters by block hash
	votes     map[string]map[int64]struct{}
	finalized map[string]bool

	orphans []orphanVote

	activeProposal bool

	validators []ValidatorFunc
}

// NewChain returns an empty Chain. Received blocks must pass the linkage
// check and every validator in order.
func NewChain(validators ...ValidatorFunc) *Chain {
	return &Chain{
		votes:      make(map[string]map[int64]struct{}),
		finalized:  make(map[string]bool),
		validators: validators,
	}
}

// Height returns the height of the last block, 0 if the chain is empty.
func (c *Chain) Height() int64 {
	if len(c.blocks) == 0 {
		return 0
	}
	return c.blocks[len(c.blocks)-1].Height
}

// Last returns the last block, nil if the chain is empty.
func (c *Chain) Last() *Block {
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// Blocks returns a copy of the list of blocks.
func (c *Chain) Blocks() []*Block {
	res := make([]*Block, len(c.blocks))
	copy(res, c.blocks)
	return res
}

// BlockAt returns the block at the given height.
func (c *Chain) BlockAt(height int64) (*Block, bool) {
	i := c.index(height)
	if i < 0 {
		return nil, false
	}
	return c.blocks[i], true
}

func (c *Chain) index(height int64) int {
	i := sort.Search(len(c.blocks), func(i int) bool {
		return c.blocks[i].Height >= height
	})
	if i < len(c.blocks) && c.blocks[i].Height == height {
		return i
	}
	return -1
}

// ActiveProposal returns true when this validator proposed a block that
// hasn't been finalized yet.
func (c *Chain) ActiveProposal() bool {
	return c.activeProposal
}

// ClearProposal lifts the active-proposal guard.
func (c *Chain) ClearProposal() {
	c.activeProposal = false
}

// LastFinalized returns true if the chain is empty or its last block has been
// finalized.
func (c *Chain) LastFinalized() bool {
	if len(c.hashes) == 0 {
		return true
	}
	return c.finalized[c.hashes[len(c.hashes)-1]]
}

// Form builds the next block out of txs, appends it, and raises the
// active-proposal guard. It fails with an ActiveProposal error while the
// previous proposal is unfinalized.
func (c *Chain) Form(txs []ledger.Transaction, timestamp int64) (*Block, error) {
	if c.activeProposal {
		return nil, NewChainErr(ActiveProposal, c.Height()+1, "")
	}

	prevHash := GenesisPrevHash
	if last := c.Last(); last != nil {
		h, err := last.Hash()
		if err != nil {
			return nil, err
		}
		prevHash = h
	}

	batch := make([]ledger.Transaction, len(txs))
	copy(batch, txs)

	b := NewBlock(c.Height()+1, prevHash, timestamp, batch)

	if err := c.append(b); err != nil {
		return nil, err
	}

	c.activeProposal = true

	return b, nil
}

// Validate runs the linkage check and the validators on b.
func (c *Chain) Validate(b *Block) error {
	if err := checkLinkage(c.Last(), b); err != nil {
		return err
	}

	for _, v := range c.validators {
		if err := v(b); err != nil {
			return err
		}
	}

	return nil
}

// Add appends a block received from another validator. It returns a
// KnownBlock error if we already have the block, or the validation error if
// the block is refused.
func (c *Chain) Add(b *Block) error {
	if existing, ok := c.BlockAt(b.Height); ok {
		h1, err := existing.Hex()
		if err != nil {
			return err
		}
		h2, err := b.Hex()
		if err != nil {
			return err
		}
		if h1 == h2 {
			return NewChainErr(KnownBlock, b.Height, "")
		}
	}

	if err := c.Validate(b); err != nil {
		return err
	}

	return c.append(b)
}

func (c *Chain) append(b *Block) error {
	hex, err := b.Hex()
	if err != nil {
		return err
	}

	c.blocks = append(c.blocks, b)
	c.hashes = append(c.hashes, hex)

	return nil
}

// Vote records voter's vote for our block b, and returns the number of
// distinct voters for it.
func (c *Chain) Vote(b *Block, voter int64) (int, error) {
	hex, err := b.Hex()
	if err != nil {
		return 0, err
	}
	return c.record(hex, voter), nil
}

func (c *Chain) record(hex string, voter int64) int {
	if c.finalized[hex] {
		return 0
	}

	voters, ok := c.votes[hex]
	if !ok {
		voters = make(map[int64]struct{})
		c.votes[hex] = voters
	}
	voters[voter] = struct{}{}

	return len(voters)
}

// ReceiveVote records a vote sent by voter. It returns the block the vote
// refers to and its number of distinct voters. A vote for a height above our
// last block is held back and (nil, 0, nil) is returned. A vote for a missing
// height or for a different hash is refused with an UnknownBlock or
// HashMismatch error.
func (c *Chain) ReceiveVote(v Vote, voter int64) (*Block, int, error) {
	b, ok := c.BlockAt(v.Height)
	if !ok {
		if v.Height > c.Height() && len(c.orphans) < MaxOrphanVotes {
			c.orphans = append(c.orphans, orphanVote{vote: v, voter: voter})
			return nil, 0, nil
		}
		return nil, 0, NewChainErr(UnknownBlock, v.Height, "")
	}

	hex := c.hashes[c.index(v.Height)]
	if hex != crypto.HexString(v.BlockHash) {
		return nil, 0, NewChainErr(HashMismatch, v.Height,
			"expected "+hex[:8]+", got "+crypto.ShortHex(v.BlockHash))
	}

	return b, c.record(hex, voter), nil
}

// Voters returns the ids of the validators who voted for the block with the
// given hex hash, in ascending order.
func (c *Chain) Voters(hex string) []int64 {
	res := []int64{}
	for id := range c.votes[hex] {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// TakeOrphans returns, and forgets, the held back votes for the given height.
func (c *Chain) TakeOrphans(height int64) (votes []Vote, voters []int64) {
	kept := c.orphans[:0]
	for _, o := range c.orphans {
		if o.vote.Height == height {
			votes = append(votes, o.vote)
			voters = append(voters, o.voter)
			continue
		}
		if o.vote.Height > height {
			kept = append(kept, o)
		}
	}
	c.orphans = kept
	return votes, voters
}

// Finalize marks b as finalized: its tally is discarded, later votes for it
// are ignored, and the active-proposal guard is lifted.
func (c *Chain) Finalize(b *Block) error {
	hex, err := b.Hex()
	if err != nil {
		return err
	}

	delete(c.votes, hex)
	c.finalized[hex] = true
	c.activeProposal = false

	return nil
}

// Unfinalized returns the blocks that haven't been finalized yet, in height
// order.
func (c *Chain) Unfinalized() []*Block {
	res := []*Block{}
	for i, b := range c.blocks {
		if !c.finalized[c.hashes[i]] {
			res = append(res, b)
		}
	}
	return res
}

// VoteCount returns the number of distinct voters for b.
func (c *Chain) VoteCount(b *Block) int {
	hex, err := b.Hex()
	if err != nil {
		return 0
	}
	return len(c.votes[hex])
}

// IsFinalized returns true if the block has been finalized.
func (c *Chain) IsFinalized(b *Block) bool {
	hex, err := b.Hex()
	if err != nil {
		return false
	}
	return c.finalized[hex]
}

// Quorum returns true if votes out of validators reaches the two-thirds
// finality threshold.
func Quorum(votes, validators int) bool {
	return validators > 0 && 3*votes >= 2*validators
}
