package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors of a validator. Every node has its
// own registry, so that several nodes can live in the same process.
type Metrics struct {
	Registry *prometheus.Registry

	FinalizedBlocks       prometheus.Counter
	FinalizedTransactions prometheus.Counter
	RequeuedTransactions  prometheus.Counter
	DroppedTransactions   prometheus.Counter
	SubmittedTransactions prometheus.Counter
	InvalidBlocks         prometheus.Counter
	InvalidVotes          prometheus.Counter
	Elections             *prometheus.CounterVec

	PendingTransactions prometheus.Gauge
	ElectionRound       prometheus.Gauge
	ChainHeight         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with a new registry.
// Every series carries a node_id label.
func NewMetrics(id string) *Metrics {
	labels := prometheus.Labels{"node_id": id}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "stakeledger",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "stakeledger",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &Metrics{
		Registry:              prometheus.NewRegistry(),
		FinalizedBlocks:       counter("finalized_blocks_total", "Number of blocks finalized"),
		FinalizedTransactions: counter("finalized_transactions_total", "Number of transactions applied to the ledger"),
		RequeuedTransactions:  counter("requeued_transactions_total", "Number of transactions requeued for insufficient funds"),
		DroppedTransactions:   counter("dropped_transactions_total", "Number of transactions dropped as invalid"),
		SubmittedTransactions: counter("submitted_transactions_total", "Number of transactions accepted from clients"),
		InvalidBlocks:         counter("invalid_blocks_total", "Number of received blocks that failed validation"),
		InvalidVotes:          counter("invalid_votes_total", "Number of received block votes that were refused"),
		Elections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "stakeledger",
				Name:        "elections_total",
				Help:        "Number of election rounds by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		PendingTransactions: gauge("pending_transactions", "Number of pending transactions"),
		ElectionRound:       gauge("election_round", "Current election round"),
		ChainHeight:         gauge("chain_height", "Height of the last block"),
	}

	m.Registry.MustRegister(
		m.FinalizedBlocks,
		m.FinalizedTransactions,
		m.RequeuedTransactions,
		m.DroppedTransactions,
		m.SubmittedTransactions,
		m.InvalidBlocks,
		m.InvalidVotes,
		m.Elections,
		m.PendingTransactions,
		m.ElectionRound,
		m.ChainHeight,
	)

	return m
}
