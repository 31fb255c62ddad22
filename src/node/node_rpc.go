package node

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/stakeledger/src/chain"
	"github.com/mosaicnetworks/stakeledger/src/ledger"
	"github.com/mosaicnetworks/stakeledger/src/net"
	"github.com/mosaicnetworks/stakeledger/src/node/state"
	"github.com/mosaicnetworks/stakeledger/src/peers"
	"github.com/mosaicnetworks/stakeledger/src/pool"
)

func (n *Node) announcement() net.Announcement {
	return net.Announcement{
		SenderID: n.id,
		IsClient: false,
		NetAddr:  n.trans.LocalAddr(),
	}
}

func (n *Node) send(target string, msg interface{}) {
	if err := n.trans.Send(target, msg); err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"target": target,
			"msg":    fmt.Sprintf("%T", msg),
		}).Debug("Send")
	}
}

// Broadcast sends msg to every known validator, except ourselves and the
// excluded ids.
func (n *Node) Broadcast(msg interface{}, exclude ...int64) {
	targets := peers.ExcludePeers(n.registry.Validators(), append(exclude, n.id)...)
	for _, p := range targets {
		n.send(p.NetAddr, msg)
	}
}

// senderID resolves the id of the node that sent an RPC.
func (n *Node) senderID(rpc net.RPC) (int64, bool) {
	p, ok := n.registry.ByAddr(rpc.From)
	if !ok {
		return 0, false
	}
	return p.ID, true
}

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case net.Announcement:
		n.processAnnouncement(rpc, cmd)
	case net.TransactionBody:
		n.processTransaction(cmd)
	case net.Gossip:
		n.processGossip(rpc, cmd)
	case net.AnnounceParticipation:
		n.processParticipation(cmd)
	case net.AnnounceWinner:
		n.processWinner(rpc, cmd)
	case net.Block:
		n.processBlock(rpc, cmd)
	case net.BlockVote:
		n.processBlockVote(rpc, cmd)
	default:
		n.logger.WithField("cmd", fmt.Sprintf("%T", rpc.Command)).Error("Unexpected RPC command")
	}
}

func (n *Node) processAnnouncement(rpc net.RPC, cmd net.Announcement) {
	if cmd.NetAddr == "" {
		cmd.NetAddr = rpc.From
	}

	if !n.registry.Register(cmd.SenderID, cmd.IsClient, cmd.NetAddr) {
		return
	}

	n.logger.WithFields(logrus.Fields{
		"peer":      cmd.SenderID,
		"is_client": cmd.IsClient,
		"addr":      cmd.NetAddr,
	}).Debug("New peer")

	if cmd.IsClient {
		n.ledger.Open(cmd.SenderID)
	}

	exclude := []int64{cmd.SenderID}
	if relayer, ok := n.senderID(rpc); ok {
		exclude = append(exclude, relayer)
	}
	n.Broadcast(cmd, exclude...)

	n.send(cmd.NetAddr, n.announcement())

	n.checkValidating()
	n.maybeGrant()
}

func validTransaction(tx ledger.Transaction) bool {
	return tx.Amount > 0
}

func (n *Node) processTransaction(cmd net.TransactionBody) {
	tx := cmd.Transaction

	if !validTransaction(tx) || tx.IsMint() {
		n.metrics.DroppedTransactions.Inc()
		n.logger.WithField("tx", tx).Warn("Refusing client transaction")
		return
	}

	if n.pool.Submit(tx) {
		n.metrics.SubmittedTransactions.Inc()
		n.logger.WithField("tx", tx).Debug("Transaction buffered")
	}
}

func (n *Node) processGossip(rpc net.RPC, cmd net.Gossip) {
	valid := make([]ledger.Transaction, 0, len(cmd.Transactions))
	for _, tx := range cmd.Transactions {
		if validTransaction(tx) {
			valid = append(valid, tx)
		}
	}

	accepted := n.pool.Merge(valid)
	if len(accepted) > 0 {
		exclude := []int64{}
		if from, ok := n.senderID(rpc); ok {
			exclude = append(exclude, from)
		}
		n.Broadcast(net.Gossip{Transactions: accepted}, exclude...)
	}

	n.checkEarlyElection()
}

// Election messages are ignored until the registry is complete, so that
// quorums are never computed over a partial validator-set.
func (n *Node) processParticipation(cmd net.AnnounceParticipation) {
	if n.GetState() != state.Validating {
		n.logger.WithField("sender", cmd.SenderID).Debug("Ignoring participation before validating")
		return
	}

	if err := n.election.HandleParticipation(cmd); err != nil {
		n.logger.WithError(err).WithField("sender", cmd.SenderID).Error("Participation")
	}
}

func (n *Node) processWinner(rpc net.RPC, cmd net.AnnounceWinner) {
	if n.GetState() != state.Validating {
		n.logger.WithField("sender", cmd.SenderID).Debug("Ignoring winner announcement before validating")
		return
	}

	from, ok := n.senderID(rpc)
	if !ok {
		from = cmd.SenderID
	}

	if err := n.election.HandleWinner(cmd, from); err != nil {
		n.logger.WithError(err).WithField("sender", cmd.SenderID).Error("Winner announcement")
	}
}

// propose forms a block out of the first pending transactions, if we are the
// leader, the previous block was finalized, and no election is running. A
// leader that is being replaced stops proposing as soon as the next round
// starts.
func (n *Node) propose() {
	if leader, ok := n.election.Leader(); !ok || leader != n.id {
		return
	}

	if n.election.Running() {
		return
	}

	if n.chain.ActiveProposal() || !n.chain.LastFinalized() {
		return
	}

	txs := n.pool.Pending(n.conf.BlockWidth)
	if len(txs) == 0 {
		return
	}

	b, err := n.chain.Form(txs, time.Now().UnixNano())
	if err != nil {
		n.logger.WithError(err).Error("Forming block")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"height":       b.Height,
		"transactions": len(b.Transactions),
	}).Debug("Proposing block")

	n.Broadcast(net.Block{Block: *b})

	n.castVote(b)
}

func (n *Node) processBlock(rpc net.RPC, cmd net.Block) {
	b := cmd.Block
	block := &b

	from, _ := n.senderID(rpc)

	err := n.chain.Add(block)
	if chain.IsChain(err, chain.KnownBlock) {
		return
	}
	if err != nil {
		n.metrics.InvalidBlocks.Inc()
		n.logger.WithError(err).WithFields(logrus.Fields{
			"height": block.Height,
			"from":   from,
		}).Warn("Invalid block")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"height":       block.Height,
		"transactions": len(block.Transactions),
		"from":         from,
	}).Debug("Received block")

	n.Broadcast(net.Block{Block: *block}, from)

	n.castVote(block)

	votes, voters := n.chain.TakeOrphans(block.Height)
	for i := range votes {
		n.tally(votes[i], voters[i])
	}
}

func (n *Node) castVote(b *chain.Block) {
	if _, err := n.chain.Vote(b, n.id); err != nil {
		n.logger.WithError(err).Error("Voting")
		return
	}

	hash, err := b.Hash()
	if err != nil {
		n.logger.WithError(err).Error("Hashing block")
		return
	}

	n.Broadcast(net.BlockVote{Height: b.Height, BlockHash: hash})

	n.commitReady()
}

func (n *Node) processBlockVote(rpc net.RPC, cmd net.BlockVote) {
	voter, ok := n.registry.ByAddr(rpc.From)
	if !ok || voter.IsClient {
		n.metrics.InvalidVotes.Inc()
		n.logger.WithField("from", rpc.From).Warn("Vote from unknown validator")
		return
	}

	n.tally(chain.Vote{Height: cmd.Height, BlockHash: cmd.BlockHash}, voter.ID)
}

func (n *Node) tally(v chain.Vote, voter int64) {
	b, _, err := n.chain.ReceiveVote(v, voter)
	if err != nil {
		n.metrics.InvalidVotes.Inc()
		n.logger.WithError(err).WithField("voter", voter).Warn("Invalid vote")
		return
	}

	if b == nil {
		n.logger.WithFields(logrus.Fields{
			"height": v.Height,
			"voter":  voter,
		}).Debug("Holding vote for unknown block")
		return
	}

	n.commitReady()
}

// commitReady finalizes, in height order, the blocks that gathered a quorum
// of votes. It stops at the first block that hasn't, so that blocks are
// always applied in the same order.
func (n *Node) commitReady() {
	validators := n.registry.ValidatorCount()

	for _, b := range n.chain.Unfinalized() {
		if !chain.Quorum(n.chain.VoteCount(b), validators) {
			return
		}
		n.finalize(b)
	}
}

func (n *Node) finalize(b *chain.Block) {
	applied, requeued, skipped := 0, 0, 0

	for _, tx := range b.Transactions {
		if n.pool.Status(tx) == pool.Finalized {
			skipped++
			continue
		}

		err := n.ledger.Apply(tx)
		switch {
		case ledger.IsInsufficientFunds(err):
			n.pool.Requeue(tx)
			n.metrics.RequeuedTransactions.Inc()
			requeued++
			n.logger.WithError(err).Debug("Requeued transaction")
		case errors.Is(err, ledger.ErrInvalidAmount):
			n.pool.Drop(tx)
			n.metrics.DroppedTransactions.Inc()
			n.logger.WithField("tx", tx).Warn("Dropped invalid transaction")
		case err != nil:
			n.logger.WithError(err).WithField("tx", tx).Error("Applying transaction")
		default:
			n.pool.Finalize(tx)
			n.metrics.FinalizedTransactions.Inc()
			applied++
			n.notify(tx, b.Height)
		}
	}

	if err := n.chain.Finalize(b); err != nil {
		n.logger.WithError(err).Error("Finalizing block")
		return
	}

	n.metrics.FinalizedBlocks.Inc()

	n.logger.WithFields(logrus.Fields{
		"height":   b.Height,
		"applied":  applied,
		"requeued": requeued,
		"skipped":  skipped,
	}).Info("Finalized block")
}

// notify tells the clients involved in tx that it was finalized.
func (n *Node) notify(tx ledger.Transaction, height int64) {
	ids := []int64{tx.SenderID}
	if tx.TargetID != tx.SenderID {
		ids = append(ids, tx.TargetID)
	}

	for _, id := range ids {
		p, ok := n.registry.ByID(id)
		if !ok || !p.IsClient {
			continue
		}
		n.send(p.NetAddr, net.Notification{
			Transaction: tx,
			Height:      height,
		})
	}
}
