package node

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/stakeledger/src/chain"
	"github.com/mosaicnetworks/stakeledger/src/config"
	"github.com/mosaicnetworks/stakeledger/src/election"
	"github.com/mosaicnetworks/stakeledger/src/ledger"
	"github.com/mosaicnetworks/stakeledger/src/net"
	"github.com/mosaicnetworks/stakeledger/src/node/state"
	"github.com/mosaicnetworks/stakeledger/src/peers"
	"github.com/mosaicnetworks/stakeledger/src/pool"
)

// Node is a validator.
type Node struct {
	// The node runs a single goroutine. Handlers and timers are executed
	// one at a time by the Run loop.
	state.Manager

	conf   *config.Config
	logger *logrus.Entry
	id     int64

	registry *peers.Registry
	ledger   *ledger.Ledger
	pool     *pool.Pool

	// coreLock is held by the Run loop while it handles an event, and by the
	// accessors that read the chain or the election from other goroutines.
	coreLock sync.Mutex
	chain    *chain.Chain
	election *election.Election

	trans     net.Transport
	netCh     <-chan net.RPC
	bootstrap []string

	scheduler *Scheduler
	metrics   *Metrics

	granted bool

	// progress watch of the early election
	stallSince  time.Time
	stallHeight int64

	shutdownCh chan struct{}
	start      time.Time
}

// NewNode is a factory method that returns a Node instance. bootstrap is the
// list of addresses the node announces itself to when it starts.
func NewNode(conf *config.Config,
	trans net.Transport,
	bootstrap []string,
) *Node {
	n := &Node{
		conf:       conf,
		logger:     conf.Logger().WithField("this_id", conf.ID),
		id:         conf.ID,
		registry:   peers.NewRegistry(),
		ledger:     ledger.NewLedger(),
		pool:       pool.NewPool(),
		trans:      trans,
		netCh:      trans.Consumer(),
		bootstrap:  bootstrap,
		scheduler:  NewScheduler(),
		metrics:    NewMetrics(strconv.FormatInt(conf.ID, 10)),
		shutdownCh: make(chan struct{}),
	}

	n.chain = chain.NewChain(
		chain.NoDuplicateTransactions,
		chain.NoFinalizedTransactions(func(tx ledger.Transaction) bool {
			return n.pool.Status(tx) == pool.Finalized
		}),
	)

	n.election = election.NewElection(
		election.Config{
			ID:            conf.ID,
			Stake:         conf.Stake,
			Tolerance:     conf.Tolerance,
			AnnounceGrace: conf.AnnounceGrace,
			ElectGrace:    conf.ElectGrace,
			RoundTimeout:  conf.RoundTimeout,
			OnOutcome:     n.onElectionOutcome,
		},
		n.registry.ValidatorCount,
		n,
		n.scheduler,
		n.logger,
	)

	return n
}

// Init registers the node with itself and announces it to the bootstrap
// peers.
func (n *Node) Init() error {
	n.registry.Register(n.id, false, n.trans.LocalAddr())

	n.SetState(state.Announcing)

	ann := n.announcement()
	for _, addr := range n.bootstrap {
		if addr == n.trans.LocalAddr() {
			continue
		}
		n.send(addr, ann)
	}

	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	n.checkValidating()
	n.maybeGrant()

	return nil
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	n.GoFunc(n.Run)
}

// Run invokes the main loop of the node. It returns when the node is shut
// down.
func (n *Node) Run() {
	n.trans.Listen()
	n.start = time.Now()

	for {
		select {
		case rpc := <-n.netCh:
			n.coreLock.Lock()
			n.processRPC(rpc)
			n.updateGauges()
			n.coreLock.Unlock()
		case f := <-n.scheduler.FiredCh():
			if !n.scheduler.Accept(f) {
				continue
			}
			n.coreLock.Lock()
			n.processTask(f.Name)
			n.updateGauges()
			n.coreLock.Unlock()
		case <-n.shutdownCh:
			return
		}
	}
}

// Shutdown stops the timers, the loop and the transport.
func (n *Node) Shutdown() {
	if n.GetState() != state.Shutdown {
		n.logger.Debug("Shutdown")

		n.SetState(state.Shutdown)

		close(n.shutdownCh)

		n.scheduler.Shutdown()

		n.WaitRoutines()

		n.trans.Close()
	}
}

func (n *Node) processTask(name string) {
	var err error

	switch name {
	case TaskGossipFlush:
		n.flush()
	case TaskElection:
		err = n.startElection()
	case TaskLeader:
		n.propose()
	case election.TaskAnnounceWinner:
		err = n.election.AnnounceWinner()
	case election.TaskRatify:
		err = n.election.Ratify()
	case election.TaskRoundTimeout:
		n.election.RoundTimeout()
	default:
		n.logger.WithField("task", name).Error("Unknown task")
	}

	if err != nil {
		n.logger.WithError(err).WithField("task", name).Error("Task failed")
	}
}

// checkValidating starts the validator's timers once the expected number of
// validators is known.
func (n *Node) checkValidating() {
	if n.GetState() != state.Announcing ||
		n.registry.ValidatorCount() < n.conf.ExpectedValidators {
		return
	}

	n.logger.WithField("validators", n.registry.ValidatorCount()).Info("Validating")

	n.SetState(state.Validating)

	n.scheduler.Every(TaskGossipFlush, n.conf.GossipDelay, n.conf.GossipInterval)
	n.scheduler.Every(TaskElection, n.conf.ElectionDelay, n.conf.ElectionInterval)
	n.scheduler.Every(TaskLeader, n.conf.LeaderInterval, n.conf.LeaderInterval)
}

// maybeGrant submits the starting balance of every client, once, if this
// node is the coordinator: the validator with the lowest id, when the
// network is complete.
func (n *Node) maybeGrant() {
	if n.granted {
		return
	}

	validators := n.registry.Validators()
	if len(validators) < n.conf.ExpectedValidators ||
		n.registry.ClientCount() < n.conf.ExpectedClients ||
		validators[0].ID != n.id {
		return
	}

	n.granted = true

	clients := n.registry.Clients()
	for _, c := range clients {
		n.pool.Submit(ledger.NewMintTransaction(c.ID, n.conf.StartingBalance, 0))
	}

	n.logger.WithFields(logrus.Fields{
		"clients": len(clients),
		"amount":  n.conf.StartingBalance,
	}).Info("Granted starting balances")
}

func (n *Node) startElection() error {
	if n.GetState() != state.Validating || n.election.Running() {
		return nil
	}
	return n.election.Start()
}

// checkEarlyElection starts an election when EarlyElection transactions are
// pending and no leader is making progress: either none is known, or the
// finalized height hasn't moved for a stall window while the threshold was
// reached.
func (n *Node) checkEarlyElection() {
	if n.conf.EarlyElection <= 0 ||
		n.GetState() != state.Validating ||
		n.election.Running() {
		return
	}

	if n.pool.PendingLen() < n.conf.EarlyElection {
		n.stallSince = time.Time{}
		return
	}

	if _, ok := n.election.Leader(); ok {
		height := n.finalizedHeight()
		if n.stallSince.IsZero() || height != n.stallHeight {
			n.stallSince = time.Now()
			n.stallHeight = height
			return
		}
		if time.Since(n.stallSince) < n.stallWindow() {
			return
		}
	}

	n.logger.WithFields(logrus.Fields{
		"pending": n.pool.PendingLen(),
		"round":   n.election.Round(),
	}).Debug("Early election")

	n.stallSince = time.Time{}

	if err := n.startElection(); err != nil {
		n.logger.WithError(err).Error("Early election")
	}
}

// stallWindow is how long the leader has to finalize a block once the early
// election threshold is reached.
func (n *Node) stallWindow() time.Duration {
	return n.conf.GossipInterval + 2*n.conf.LeaderInterval
}

func (n *Node) onElectionOutcome(round int64, outcome election.Outcome, winner int64) {
	n.metrics.Elections.WithLabelValues(outcome.String()).Inc()

	if outcome != election.Elected {
		n.logger.WithFields(logrus.Fields{
			"round":   round,
			"outcome": outcome,
		}).Debug("No leader elected")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"round":  round,
		"leader": winner,
	}).Info("Leader elected")

	n.chain.ClearProposal()
	n.stallSince = time.Time{}

	if winner == n.id {
		n.propose()
	}
}

func (n *Node) flush() {
	txs := n.pool.Flush()
	if len(txs) > 0 {
		n.logger.WithField("transactions", len(txs)).Debug("Gossip")
		n.Broadcast(net.Gossip{Transactions: txs})
	}

	n.checkEarlyElection()
}

// Submit adds a transaction to the buffer, as if it was received from a
// client. It returns false if the transaction is invalid or already known.
func (n *Node) Submit(tx ledger.Transaction) bool {
	if tx.Amount <= 0 || tx.IsMint() {
		n.logger.WithField("tx", tx).Warn("Refusing transaction")
		return false
	}

	if !n.pool.Submit(tx) {
		return false
	}

	n.metrics.SubmittedTransactions.Inc()

	return true
}

func (n *Node) updateGauges() {
	n.metrics.PendingTransactions.Set(float64(n.pool.PendingLen()))
	n.metrics.ElectionRound.Set(float64(n.election.Round()))
	n.metrics.ChainHeight.Set(float64(n.chain.Height()))
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	ps := n.pool.Stats()

	leader := "none"
	if l, ok := n.election.Leader(); ok {
		leader = strconv.FormatInt(l, 10)
	}

	s := map[string]string{
		"id":                     fmt.Sprint(n.id),
		"state":                  n.GetState().String(),
		"election_round":         strconv.FormatInt(n.election.Round(), 10),
		"election_phase":         n.election.Phase().String(),
		"election_participants":  strconv.Itoa(len(n.election.Participants())),
		"leader":                 leader,
		"last_block_index":       strconv.FormatInt(n.chain.Height(), 10),
		"num_validators":         strconv.Itoa(n.registry.ValidatorCount()),
		"num_clients":            strconv.Itoa(n.registry.ClientCount()),
		"buffered_transactions":  strconv.Itoa(ps.Buffered),
		"pending_transactions":   strconv.Itoa(ps.Pending),
		"finalized_transactions": strconv.Itoa(ps.Finalized),
		"total_balance":          strconv.FormatInt(n.ledger.Total(), 10),
	}
	return s
}

// Balances returns a copy of the ledger balances.
func (n *Node) Balances() map[int64]int64 {
	return n.ledger.Balances()
}

// Balance returns the balance of an account.
func (n *Node) Balance(id int64) int64 {
	return n.ledger.Balance(id)
}

// Blocks returns the blocks of the local chain.
func (n *Node) Blocks() []*chain.Block {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.chain.Blocks()
}

// FinalizedHeight returns the height of the last finalized block.
func (n *Node) FinalizedHeight() int64 {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.finalizedHeight()
}

func (n *Node) finalizedHeight() int64 {
	height := n.chain.Height()
	if u := n.chain.Unfinalized(); len(u) > 0 {
		height = u[0].Height - 1
	}
	return height
}

// FinalizedTransactions returns the finalized transactions in the order they
// were applied.
func (n *Node) FinalizedTransactions() []ledger.Transaction {
	return n.pool.FinalizedTransactions()
}

// TransactionStatus returns the status of tx in the local pool.
func (n *Node) TransactionStatus(tx ledger.Transaction) pool.Status {
	return n.pool.Status(tx)
}

// Leader returns the current leader, if one was elected.
func (n *Node) Leader() (int64, bool) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.election.Leader()
}

// ID returns the node's id.
func (n *Node) ID() int64 {
	return n.id
}

// Addr returns the transport address of the node.
func (n *Node) Addr() string {
	return n.trans.LocalAddr()
}

// GetPeers returns the known validators and clients.
func (n *Node) GetPeers() []*peers.Peer {
	return append(n.registry.Validators(), n.registry.Clients()...)
}

// Metrics returns the node's prometheus collectors.
func (n *Node) Metrics() *Metrics {
	return n.metrics
}
