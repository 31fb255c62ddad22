// Package sim runs a whole network of validators and clients in one process,
// over in-memory transports.
package sim

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/stakeledger/src/client"
	"github.com/mosaicnetworks/stakeledger/src/config"
	"github.com/mosaicnetworks/stakeledger/src/net"
	"github.com/mosaicnetworks/stakeledger/src/node"
)

// Config describes a simulated network.
type Config struct {
	Validators int
	Clients    int

	// TxInterval, when > 0, makes every client transfer a random amount to
	// another random client at that interval.
	TxInterval time.Duration
	MaxAmount  int64

	// NodeConfig returns the configuration of validator i, 0-based. Ids and
	// network size are filled in by the network.
	NodeConfig func(i int) *config.Config

	Logger *logrus.Entry
}

// Network is a set of validators and clients wired together.
type Network struct {
	conf Config

	Nodes   []*node.Node
	Clients []*client.Client

	transports []*net.InmemTransport

	wg         sync.WaitGroup
	stopOnce   sync.Once
	shutdownCh chan struct{}
}

// ValidatorID returns the id of validator i, 0-based.
func ValidatorID(i int) int64 {
	return int64(i + 1)
}

// ClientID returns the id of client i, 0-based. Client ids come after the
// validator ids.
func ClientID(validators, i int) int64 {
	return int64(validators + i + 1)
}

// NewNetwork creates the transports, validators and clients. Nothing runs
// until Start is called.
func NewNetwork(conf Config) *Network {
	if conf.MaxAmount <= 0 {
		conf.MaxAmount = 100
	}

	n := &Network{
		conf:       conf,
		shutdownCh: make(chan struct{}),
	}

	validatorAddrs := []string{}
	vTrans := []*net.InmemTransport{}
	for i := 0; i < conf.Validators; i++ {
		addr, trans := net.NewInmemTransport(fmt.Sprintf("validator-%d", ValidatorID(i)))
		validatorAddrs = append(validatorAddrs, addr)
		vTrans = append(vTrans, trans)
		n.transports = append(n.transports, trans)
	}

	cTrans := []*net.InmemTransport{}
	for i := 0; i < conf.Clients; i++ {
		_, trans := net.NewInmemTransport(fmt.Sprintf("client-%d", ClientID(conf.Validators, i)))
		cTrans = append(cTrans, trans)
		n.transports = append(n.transports, trans)
	}

	net.ConnectAll(n.transports...)

	for i, trans := range vTrans {
		nc := conf.NodeConfig(i)
		nc.ID = ValidatorID(i)
		nc.ExpectedValidators = conf.Validators
		nc.ExpectedClients = conf.Clients

		n.Nodes = append(n.Nodes, node.NewNode(nc, trans, validatorAddrs))
	}

	for i, trans := range cTrans {
		n.Clients = append(n.Clients, client.NewClient(
			ClientID(conf.Validators, i),
			trans,
			validatorAddrs,
			conf.Logger,
		))
	}

	return n
}

// Start initializes and runs every node, then starts the random transfers
// if requested.
func (n *Network) Start() error {
	for _, v := range n.Nodes {
		if err := v.Init(); err != nil {
			return err
		}
		v.RunAsync()
	}

	for _, c := range n.Clients {
		if err := c.Init(); err != nil {
			return err
		}
		c.RunAsync()
	}

	if n.conf.TxInterval > 0 && len(n.Clients) > 1 {
		for _, c := range n.Clients {
			n.wg.Add(1)
			go n.transferLoop(c)
		}
	}

	return nil
}

func (n *Network) transferLoop(c *client.Client) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.conf.TxInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			target := n.Clients[rand.IntN(len(n.Clients))].ID()
			if target == c.ID() {
				continue
			}
			amount := rand.Int64N(n.conf.MaxAmount) + 1
			if _, err := c.Transfer(target, amount); err != nil {
				n.conf.Logger.WithError(err).Debug("Random transfer")
			}
		case <-n.shutdownCh:
			return
		}
	}
}

// StopTransfers stops the random transfers and waits for the transfer
// goroutines to exit.
func (n *Network) StopTransfers() {
	n.stopOnce.Do(func() { close(n.shutdownCh) })
	n.wg.Wait()
}

// Shutdown stops the transfers, the clients and the validators.
func (n *Network) Shutdown() {
	n.StopTransfers()

	for _, c := range n.Clients {
		c.Shutdown()
	}
	for _, v := range n.Nodes {
		v.Shutdown()
	}
}

// Converged returns true if every validator has the same balances and the
// same finalized height.
func (n *Network) Converged() bool {
	if len(n.Nodes) == 0 {
		return true
	}

	ref := n.Nodes[0]
	refBalances := ref.Balances()
	refHeight := ref.FinalizedHeight()

	for _, v := range n.Nodes[1:] {
		if v.FinalizedHeight() != refHeight {
			return false
		}
		balances := v.Balances()
		if len(balances) != len(refBalances) {
			return false
		}
		for id, b := range refBalances {
			if balances[id] != b {
				return false
			}
		}
	}

	return true
}
