// Package peers keeps track of the nodes a node has heard of.
//
// A peer is either a validator, which takes part in ordering transactions, or
// a client, which only submits transactions and receives notifications. Peers
// make themselves known through announcements, and every node builds its own
// Registry out of the announcements it receives. Validators relay new
// announcements to the other validators, so that the registries converge.
//
// Peers are identified by an integer id, chosen by the peer itself, and carry
// the transport address where they can be reached. The validator-set never
// changes once the network has started: peers are added but never removed.
package peers
