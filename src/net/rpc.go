package net

// RPC is a message delivered to a node, along with the address of the node
// that sent it. Messages are fire-and-forget: there is no response channel.
type RPC struct {
	From    string
	Command interface{}
}
