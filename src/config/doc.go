// Package config defines the configuration of a node.
//
// Validators and clients, whether they are started from the command line or
// built in-process by the simulation harness, read their options from the
// Config object defined here. From the command line, options can also be set
// in a stakeledger.toml file placed in the data directory.
//
// The timers of a validator are the main knobs: the gossip, leader and
// election intervals, the two grace periods of an election, and the round
// timeout. The defaults suit a small network of processes on one machine;
// NewTestConfig shortens all of them for tests.
package config
