package node

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/stakeledger/src/chain"
	"github.com/mosaicnetworks/stakeledger/src/common"
	"github.com/mosaicnetworks/stakeledger/src/config"
	"github.com/mosaicnetworks/stakeledger/src/ledger"
	"github.com/mosaicnetworks/stakeledger/src/net"
	"github.com/mosaicnetworks/stakeledger/src/node/state"
	"github.com/mosaicnetworks/stakeledger/src/pool"
)

type testClient struct {
	id    int64
	trans *net.InmemTransport
}

func (c *testClient) announce(targets ...string) {
	for _, addr := range targets {
		c.trans.Send(addr, net.Announcement{
			SenderID: c.id,
			IsClient: true,
			NetAddr:  c.trans.LocalAddr(),
		})
	}
}

func (c *testClient) submit(target string, tx ledger.Transaction) {
	c.trans.Send(target, net.TransactionBody{Transaction: tx})
}

// initNodes creates validators 1..n and clients 101..100+m over connected
// in-memory transports. Validators are bootstrapped with the address of
// validator 1 only, so that the others are discovered through relays.
func initNodes(t *testing.T, n, m int, level logrus.Level, opts ...func(*config.Config)) ([]*Node, []*testClient) {
	transports := []*net.InmemTransport{}

	vTrans := []*net.InmemTransport{}
	for i := 1; i <= n; i++ {
		_, trans := net.NewInmemTransport(fmt.Sprintf("validator%d", i))
		vTrans = append(vTrans, trans)
		transports = append(transports, trans)
	}

	clients := []*testClient{}
	for i := 1; i <= m; i++ {
		_, trans := net.NewInmemTransport(fmt.Sprintf("client%d", i))
		clients = append(clients, &testClient{id: int64(100 + i), trans: trans})
		transports = append(transports, trans)
	}

	net.ConnectAll(transports...)

	nodes := []*Node{}
	for i, trans := range vTrans {
		conf := config.NewTestConfig(t, level)
		conf.ID = int64(i + 1)
		conf.Stake = 100
		conf.ExpectedValidators = n
		conf.ExpectedClients = m
		for _, opt := range opts {
			opt(conf)
		}

		node := NewNode(conf, trans, []string{vTrans[0].LocalAddr()})
		if err := node.Init(); err != nil {
			t.Fatalf("err: %v", err)
		}
		node.RunAsync()

		nodes = append(nodes, node)
	}

	for _, c := range clients {
		c.announce(vTrans[0].LocalAddr())
	}

	return nodes, clients
}

func shutdownNodes(nodes []*Node, clients []*testClient) {
	for _, n := range nodes {
		n.Shutdown()
	}
	for _, c := range clients {
		c.trans.Close()
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func balancesEverywhere(nodes []*Node, expected map[int64]int64) func() bool {
	return func() bool {
		for _, n := range nodes {
			for id, b := range expected {
				if n.Balance(id) != b {
					return false
				}
			}
		}
		return true
	}
}

func TestDiscovery(t *testing.T) {
	nodes, clients := initNodes(t, 4, 2, common.TestLogLevel)
	defer shutdownNodes(nodes, clients)

	waitFor(t, 5*time.Second, "registries to converge", func() bool {
		for _, n := range nodes {
			if len(n.GetPeers()) != 6 || n.GetState() != state.Validating {
				return false
			}
		}
		return true
	})

	// Re-announcements change nothing.
	clients[0].announce(nodes[2].Addr(), nodes[3].Addr())
	time.Sleep(50 * time.Millisecond)

	for _, n := range nodes {
		if l := len(n.GetPeers()); l != 6 {
			t.Fatalf("node %d should know 6 peers, not %d", n.ID(), l)
		}
	}
}

func TestTransfer(t *testing.T) {
	nodes, clients := initNodes(t, 4, 2, common.TestLogLevel)
	defer shutdownNodes(nodes, clients)

	a, b := clients[0], clients[1]

	waitFor(t, 10*time.Second, "starting balances", balancesEverywhere(nodes, map[int64]int64{
		a.id: 1000,
		b.id: 1000,
	}))

	tx := ledger.Transaction{SenderID: a.id, TargetID: b.id, Amount: 100, Nonce: 1}
	a.submit(nodes[1].Addr(), tx)

	waitFor(t, 10*time.Second, "transfer", balancesEverywhere(nodes, map[int64]int64{
		a.id: 900,
		b.id: 1100,
	}))

	for _, n := range nodes {
		count := 0
		for _, f := range n.FinalizedTransactions() {
			if f == tx {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("node %d finalized the transfer %d times", n.ID(), count)
		}

		if n.TransactionStatus(tx) != pool.Finalized {
			t.Fatalf("node %d: transfer should be finalized", n.ID())
		}

		if total := n.ledger.Total(); total != 2000 {
			t.Fatalf("node %d: total balance should be 2000, not %d", n.ID(), total)
		}
	}

	// Client a was notified at least once by a validator.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case rpc := <-a.trans.Consumer():
			if notif, ok := rpc.Command.(net.Notification); ok && notif.Transaction == tx {
				return
			}
		case <-deadline:
			t.Fatalf("client should be notified of the transfer")
		}
	}
}

func TestInsufficientFundsRequeued(t *testing.T) {
	nodes, clients := initNodes(t, 4, 2, common.TestLogLevel)
	defer shutdownNodes(nodes, clients)

	a, b := clients[0], clients[1]

	waitFor(t, 10*time.Second, "starting balances", balancesEverywhere(nodes, map[int64]int64{
		a.id: 1000,
		b.id: 1000,
	}))

	big := ledger.Transaction{SenderID: a.id, TargetID: b.id, Amount: 1500, Nonce: 1}
	a.submit(nodes[0].Addr(), big)

	waitFor(t, 10*time.Second, "requeues", func() bool {
		for _, n := range nodes {
			if testutil.ToFloat64(n.Metrics().RequeuedTransactions) == 0 {
				return false
			}
		}
		return true
	})

	for _, n := range nodes {
		if s := n.TransactionStatus(big); s != pool.Pending {
			t.Fatalf("node %d: transaction should be pending, not %s", n.ID(), s)
		}
		if n.Balance(a.id) != 1000 {
			t.Fatalf("node %d: balance should be untouched", n.ID())
		}
	}

	// Once a can afford it, the requeued transaction goes through.
	b.submit(nodes[2].Addr(), ledger.Transaction{SenderID: b.id, TargetID: a.id, Amount: 600, Nonce: 1})

	waitFor(t, 10*time.Second, "requeued transfer", balancesEverywhere(nodes, map[int64]int64{
		a.id: 100,
		b.id: 1900,
	}))
}

func TestLeaderAgreement(t *testing.T) {
	nodes, clients := initNodes(t, 4, 0, common.TestLogLevel)
	defer shutdownNodes(nodes, clients)

	waitFor(t, 10*time.Second, "a leader", func() bool {
		var leader int64 = -1
		for _, n := range nodes {
			l, ok := n.Leader()
			if !ok {
				return false
			}
			if leader >= 0 && l != leader {
				return false
			}
			leader = l
		}
		return true
	})
}

func TestInvalidMessages(t *testing.T) {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.ID = 1
	conf.ExpectedValidators = 1
	conf.ExpectedClients = 0

	_, trans := net.NewInmemTransport("validator1")
	n := NewNode(conf, trans, nil)
	defer n.Shutdown()

	if err := n.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Handlers are called directly, without the loop.
	n.processRPC(net.RPC{
		From:    "somewhere",
		Command: net.Block{Block: *chain.NewBlock(5, chain.GenesisPrevHash, 0, nil)},
	})

	if v := testutil.ToFloat64(n.metrics.InvalidBlocks); v != 1 {
		t.Fatalf("block at the wrong height should be refused, got %v", v)
	}

	n.processRPC(net.RPC{
		From:    "somewhere",
		Command: net.BlockVote{Height: 1, BlockHash: []byte("hash")},
	})

	if v := testutil.ToFloat64(n.metrics.InvalidVotes); v != 1 {
		t.Fatalf("vote from an unknown peer should be refused, got %v", v)
	}

	n.processRPC(net.RPC{
		From:    "somewhere",
		Command: net.TransactionBody{Transaction: ledger.NewMintTransaction(7, 1000, 1)},
	})

	if n.pool.Stats().Buffered != 0 {
		t.Fatalf("mint transactions from clients should be refused")
	}

	if n.Submit(ledger.Transaction{SenderID: 1, TargetID: 2, Amount: 0, Nonce: 1}) {
		t.Fatalf("zero amount should be refused")
	}

	if !n.Submit(ledger.Transaction{SenderID: 1, TargetID: 2, Amount: 5, Nonce: 1}) {
		t.Fatalf("valid transaction should be accepted")
	}
}

func TestSingleValidator(t *testing.T) {
	nodes, clients := initNodes(t, 1, 1, common.TestLogLevel)
	defer shutdownNodes(nodes, clients)

	waitFor(t, 10*time.Second, "starting balance", balancesEverywhere(nodes, map[int64]int64{
		clients[0].id: 1000,
	}))

	if h := nodes[0].FinalizedHeight(); h < 1 {
		t.Fatalf("at least one block should be finalized, got %d", h)
	}
}

func TestEarlyElection(t *testing.T) {
	nodes, clients := initNodes(t, 4, 2, common.TestLogLevel, func(c *config.Config) {
		c.ElectionDelay = time.Hour
		c.ElectionInterval = time.Hour
		c.EarlyElection = 1
	})
	defer shutdownNodes(nodes, clients)

	// The starting balances are the first pending transactions, they trigger
	// the election that elects the leader who finalizes them.
	waitFor(t, 10*time.Second, "starting balances", balancesEverywhere(nodes, map[int64]int64{
		clients[0].id: 1000,
		clients[1].id: 1000,
	}))

	for _, n := range nodes {
		if _, ok := n.Leader(); !ok {
			t.Fatalf("node %d should know the leader", n.ID())
		}
	}
}

func TestEarlyElectionReplacesSilentLeader(t *testing.T) {
	nodes, clients := initNodes(t, 4, 2, common.TestLogLevel, func(c *config.Config) {
		c.ElectionDelay = time.Hour
		c.ElectionInterval = time.Hour
		c.EarlyElection = 1
	})
	defer shutdownNodes(nodes, clients)

	a, b := clients[0], clients[1]

	waitFor(t, 10*time.Second, "starting balances", balancesEverywhere(nodes, map[int64]int64{
		a.id: 1000,
		b.id: 1000,
	}))

	var leader int64
	waitFor(t, 5*time.Second, "agreement on the leader", func() bool {
		leader = -1
		for _, n := range nodes {
			l, ok := n.Leader()
			if !ok || (leader >= 0 && l != leader) {
				return false
			}
			leader = l
		}
		return true
	})

	live := []*Node{}
	for _, n := range nodes {
		if n.ID() == leader {
			n.Shutdown()
			continue
		}
		live = append(live, n)
	}

	tx := ledger.Transaction{SenderID: a.id, TargetID: b.id, Amount: 100, Nonce: 1}
	a.submit(live[0].Addr(), tx)

	waitFor(t, 10*time.Second, "transfer without the old leader", balancesEverywhere(live, map[int64]int64{
		a.id: 900,
		b.id: 1100,
	}))

	for _, n := range live {
		l, ok := n.Leader()
		if !ok || l == leader {
			t.Fatalf("node %d should have replaced leader %d, has %d", n.ID(), leader, l)
		}
	}
}

func TestElectionIgnoredWhileAnnouncing(t *testing.T) {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.ID = 1
	conf.ExpectedValidators = 3
	conf.ExpectedClients = 0

	_, trans := net.NewInmemTransport("validator1")
	n := NewNode(conf, trans, nil)
	defer n.Shutdown()

	if err := n.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Validator 2 is known, validator 3 isn't yet.
	n.processRPC(net.RPC{
		From:    "validator2",
		Command: net.Announcement{SenderID: 2, NetAddr: "validator2"},
	})

	if n.GetState() != state.Announcing {
		t.Fatalf("node should still be announcing, not %s", n.GetState())
	}

	n.processRPC(net.RPC{
		From:    "validator2",
		Command: net.AnnounceParticipation{Round: 0, SenderID: 2, Stake: 100, OriginID: 2},
	})

	if n.election.Running() || len(n.election.Stakes()) != 0 {
		t.Fatalf("participation should be ignored before validating, phase %s, stakes %v",
			n.election.Phase(), n.election.Stakes())
	}

	n.processRPC(net.RPC{
		From: "validator2",
		Command: net.AnnounceWinner{
			Round:          3,
			SenderID:       2,
			WinnerID:       2,
			RandomSeed:     100,
			ValidatorCount: 1,
		},
	})

	if n.election.Round() != 0 || n.election.Running() {
		t.Fatalf("winner announcement should be ignored before validating, round %d", n.election.Round())
	}

	if s := n.GetStats()["election_participants"]; s != "0" {
		t.Fatalf("no participant expected, got %s", s)
	}
}
