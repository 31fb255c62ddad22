// Package client implements the client actor: a node that owns an account,
// submits transfers to the validators, and follows the finalization of the
// transactions that involve it.
package client

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/stakeledger/src/ledger"
	"github.com/mosaicnetworks/stakeledger/src/net"
	"github.com/mosaicnetworks/stakeledger/src/node/state"
	"github.com/mosaicnetworks/stakeledger/src/peers"
)

// ErrNoValidator is returned by Transfer when no validator is known yet.
var ErrNoValidator = errors.New("no known validator")

// Client ...
type Client struct {
	state.Manager

	id     int64
	logger *logrus.Entry

	trans     net.Transport
	netCh     <-chan net.RPC
	bootstrap []string

	registry *peers.Registry

	sync.Mutex
	nonce   int64
	next    int
	balance int64
	seen    map[ledger.Transaction]struct{}
	history []net.Notification

	shutdownCh chan struct{}
}

// NewClient creates a client with account id. bootstrap is the list of
// validator addresses the client announces itself to.
func NewClient(id int64, trans net.Transport, bootstrap []string, logger *logrus.Entry) *Client {
	return &Client{
		id:         id,
		logger:     logger.WithField("this_id", id),
		trans:      trans,
		netCh:      trans.Consumer(),
		bootstrap:  bootstrap,
		registry:   peers.NewRegistry(),
		seen:       make(map[ledger.Transaction]struct{}),
		shutdownCh: make(chan struct{}),
	}
}

// Init announces the client to the bootstrap validators.
func (c *Client) Init() error {
	ann := net.Announcement{
		SenderID: c.id,
		IsClient: true,
		NetAddr:  c.trans.LocalAddr(),
	}

	for _, addr := range c.bootstrap {
		if err := c.trans.Send(addr, ann); err != nil {
			c.logger.WithError(err).WithField("target", addr).Debug("Announce")
		}
	}

	return nil
}

// RunAsync calls Run in a separate goroutine.
func (c *Client) RunAsync() {
	c.GoFunc(c.Run)
}

// Run processes incoming messages until the client is shut down.
func (c *Client) Run() {
	c.trans.Listen()

	for {
		select {
		case rpc := <-c.netCh:
			c.processRPC(rpc)
		case <-c.shutdownCh:
			return
		}
	}
}

// Shutdown stops the loop and closes the transport.
func (c *Client) Shutdown() {
	if c.GetState() != state.Shutdown {
		c.SetState(state.Shutdown)
		close(c.shutdownCh)
		c.WaitRoutines()
		c.trans.Close()
	}
}

func (c *Client) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case net.Announcement:
		if cmd.IsClient {
			return
		}
		if cmd.NetAddr == "" {
			cmd.NetAddr = rpc.From
		}
		if c.registry.Register(cmd.SenderID, false, cmd.NetAddr) {
			c.logger.WithField("validator", cmd.SenderID).Debug("New validator")
		}
	case net.Notification:
		c.processNotification(cmd)
	default:
		c.logger.WithField("from", rpc.From).Debug("Ignoring message")
	}
}

// processNotification records a finalized transaction. Every validator sends
// its own notification, only the first one counts.
func (c *Client) processNotification(n net.Notification) {
	tx := n.Transaction
	if !tx.Involves(c.id) {
		return
	}

	c.Lock()
	defer c.Unlock()

	if _, ok := c.seen[tx]; ok {
		return
	}
	c.seen[tx] = struct{}{}
	c.history = append(c.history, n)

	if tx.SenderID == c.id {
		c.balance -= tx.Amount
	}
	if tx.TargetID == c.id {
		c.balance += tx.Amount
	}

	c.logger.WithFields(logrus.Fields{
		"tx":      tx,
		"height":  n.Height,
		"balance": c.balance,
	}).Debug("Transaction finalized")
}

// Transfer sends amount to target. The transaction is submitted to the next
// validator in turn, with a fresh nonce.
func (c *Client) Transfer(target, amount int64) (ledger.Transaction, error) {
	if amount <= 0 {
		return ledger.Transaction{}, ledger.ErrInvalidAmount
	}

	validators := c.registry.Validators()
	if len(validators) == 0 {
		return ledger.Transaction{}, ErrNoValidator
	}

	c.Lock()
	c.nonce++
	tx := ledger.Transaction{
		SenderID: c.id,
		TargetID: target,
		Amount:   amount,
		Nonce:    c.nonce,
	}
	v := validators[c.next%len(validators)]
	c.next++
	c.Unlock()

	if err := c.trans.Send(v.NetAddr, net.TransactionBody{Transaction: tx}); err != nil {
		return tx, err
	}

	c.logger.WithFields(logrus.Fields{
		"tx":        tx,
		"validator": v.ID,
	}).Debug("Transfer submitted")

	return tx, nil
}

// ID returns the account id of the client.
func (c *Client) ID() int64 {
	return c.id
}

// Addr returns the transport address of the client.
func (c *Client) Addr() string {
	return c.trans.LocalAddr()
}

// Balance is the balance of the client's account, according to the
// notifications it received.
func (c *Client) Balance() int64 {
	c.Lock()
	defer c.Unlock()
	return c.balance
}

// Finalized returns true if the client was notified that tx was finalized.
func (c *Client) Finalized(tx ledger.Transaction) bool {
	c.Lock()
	defer c.Unlock()
	_, ok := c.seen[tx]
	return ok
}

// History returns the notifications received, in order of arrival.
func (c *Client) History() []net.Notification {
	c.Lock()
	defer c.Unlock()
	res := make([]net.Notification, len(c.history))
	copy(res, c.history)
	return res
}

// Validators returns the validators known to the client.
func (c *Client) Validators() []*peers.Peer {
	return c.registry.Validators()
}
