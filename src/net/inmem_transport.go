package net

import (
	"crypto/rand"
	"fmt"
	"sync"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport Implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network.
//
// Every transport has an unbounded inbox drained by a single goroutine into
// the consumer channel. Senders only append to the inbox, so Send never
// blocks, and messages from one sender to one receiver are delivered in the
// order they were sent.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport

	inboxLock sync.Mutex
	inbox     []RPC
	notifyCh  chan struct{}

	shutdown   bool
	shutdownCh chan struct{}
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		notifyCh:   make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
	}

	go trans.deliver()

	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(target string, msg interface{}) error {
	i.RLock()
	peer, ok := i.peers[target]
	i.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownPeer, target)
	}

	return peer.enqueue(RPC{
		From:    i.localAddr,
		Command: msg,
	})
}

func (i *InmemTransport) enqueue(rpc RPC) error {
	i.inboxLock.Lock()
	if i.shutdown {
		i.inboxLock.Unlock()
		return ErrTransportShutdown
	}
	i.inbox = append(i.inbox, rpc)
	i.inboxLock.Unlock()

	select {
	case i.notifyCh <- struct{}{}:
	default:
	}

	return nil
}

// Pending returns the number of messages waiting in the inbox.
func (i *InmemTransport) Pending() int {
	i.inboxLock.Lock()
	defer i.inboxLock.Unlock()

	return len(i.inbox)
}

func (i *InmemTransport) deliver() {
	for {
		select {
		case <-i.notifyCh:
		case <-i.shutdownCh:
			return
		}

		for {
			i.inboxLock.Lock()
			batch := i.inbox
			i.inbox = nil
			i.inboxLock.Unlock()

			if len(batch) == 0 {
				break
			}

			for _, rpc := range batch {
				select {
				case i.consumerCh <- rpc:
				case <-i.shutdownCh:
					return
				}
			}
		}
	}
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.inboxLock.Lock()
	if !i.shutdown {
		i.shutdown = true
		close(i.shutdownCh)
	}
	i.inboxLock.Unlock()

	i.DisconnectAll()
	return nil
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}

// ConnectAll connects every transport to every other one.
func ConnectAll(transports ...*InmemTransport) {
	for _, a := range transports {
		for _, b := range transports {
			if a != b {
				a.Connect(b.LocalAddr(), b)
			}
		}
	}
}
