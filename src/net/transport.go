package net

import "errors"

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrUnknownPeer is returned when sending to an address the transport
	// cannot route to.
	ErrUnknownPeer = errors.New("unknown peer")
)

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to consume the messages
	// sent to this node.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// Send delivers msg to the node listening at target. It never blocks on
	// the receiver and does not wait for any acknowledgement.
	Send(target string, msg interface{}) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
