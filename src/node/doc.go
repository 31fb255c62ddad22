// Package node implements the validator actor.
//
// A Node wires the components of a validator (the peer registry, the ledger,
// the transaction pool, the chain and the election) to a transport. It runs a
// single loop which handles, one at a time, the messages received from other
// nodes and the timers that are due, so the components need no
// synchronisation of their own beyond what the read-only accessors require.
//
// Lifecycle
//
// A validator starts in the Announcing state. It announces itself to its
// bootstrap peers, and every validator that hears of a new peer relays the
// announcement to the other validators and answers with its own. Once the
// validator knows of the expected number of validators, it switches to the
// Validating state and arms its periodic timers:
//
//	gossip_flush  broadcasts the buffered transactions to the other validators
//	election      starts a leader election, unless one is running
//	leader        lets the leader propose a block out of pending transactions
//
// The validator with the lowest id acts as the coordinator: once the network
// is complete, it grants every client its starting balance with mint
// transactions, which go through gossip and blocks like any other.
//
// Blocks
//
// The leader proposes a block when it has pending transactions and its last
// block is finalized. Every validator that accepts a block relays it, and
// broadcasts a vote for it. A block is finalized when two thirds of the
// validators voted for it, and blocks are finalized in height order: each
// transaction is applied to the ledger, and the clients involved are
// notified. A transaction the sender cannot afford is put back in the pending
// set and retried in a later block.
package node
