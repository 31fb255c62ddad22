// Package net is the messaging substrate between nodes.
//
// It defines the messages exchanged by validators and clients (commands.go),
// and the Transport interface used to send them. Delivery is fire-and-forget:
// Send returns as soon as the message is handed over, and the receiving node
// consumes RPCs from the channel returned by Consumer.
//
// Only an in-memory transport is provided. It is used by the tests and by the
// simulation harness, where all the nodes of a network live in the same
// process. Encoding messages for the wire, and managing connections, is left
// to other implementations of Transport.
package net
