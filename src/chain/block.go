package chain

import (
	"bytes"

	"github.com/mosaicnetworks/stakeledger/src/crypto"
	"github.com/mosaicnetworks/stakeledger/src/ledger"
	"github.com/ugorji/go/codec"
)

// GenesisPrevHash is the PrevHash of the first block.
var GenesisPrevHash = []byte("0")

// Block is a batch of transactions proposed by an elected leader.
type Block struct {
	Height       int64
	PrevHash     []byte
	Timestamp    int64
	Transactions []ledger.Transaction
}

// NewBlock ...
func NewBlock(height int64, prevHash []byte, timestamp int64, txs []ledger.Transaction) *Block {
	return &Block{
		Height:       height,
		PrevHash:     prevHash,
		Timestamp:    timestamp,
		Transactions: txs,
	}
}

// Marshal returns the canonical json encoding of the block. Every validator
// must produce the same bytes for the same block.
func (b *Block) Marshal() ([]byte, error) {
	bf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(bf, jh)

	if err := enc.Encode(b); err != nil {
		return nil, err
	}

	return bf.Bytes(), nil
}

// Hash returns the SHA256 hash of the canonical encoding of the block.
func (b *Block) Hash() ([]byte, error) {
	data, err := b.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(data), nil
}

// Hex returns the hex encoded hash of the block.
func (b *Block) Hex() (string, error) {
	hash, err := b.Hash()
	if err != nil {
		return "", err
	}
	return crypto.HexString(hash), nil
}
