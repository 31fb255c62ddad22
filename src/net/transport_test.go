package net

import (
	"errors"
	"testing"
	"time"

	"github.com/mosaicnetworks/stakeledger/src/ledger"
)

func receive(t *testing.T, trans Transport) RPC {
	t.Helper()

	select {
	case rpc := <-trans.Consumer():
		return rpc
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a message")
	}
	return RPC{}
}

func TestInmemTransport_Send(t *testing.T) {
	addr1, trans1 := NewInmemTransport("")
	defer trans1.Close()
	addr2, trans2 := NewInmemTransport("")
	defer trans2.Close()

	ConnectAll(trans1, trans2)

	msg := TransactionBody{ledger.Transaction{SenderID: 2, TargetID: 4, Amount: 10, Nonce: 1}}
	if err := trans1.Send(addr2, msg); err != nil {
		t.Fatalf("err: %v", err)
	}

	rpc := receive(t, trans2)

	if rpc.From != addr1 {
		t.Fatalf("From should be %s, not %s", addr1, rpc.From)
	}

	out, ok := rpc.Command.(TransactionBody)
	if !ok {
		t.Fatalf("command should be a TransactionBody, not %T", rpc.Command)
	}

	if out != msg {
		t.Fatalf("received %v, expected %v", out, msg)
	}
}

func TestInmemTransport_Order(t *testing.T) {
	_, trans1 := NewInmemTransport("")
	defer trans1.Close()
	addr2, trans2 := NewInmemTransport("")
	defer trans2.Close()

	trans1.Connect(addr2, trans2)

	// More than the consumer channel can hold; Send must not block.
	const n = 200
	for i := 0; i < n; i++ {
		if err := trans1.Send(addr2, BlockVote{Height: int64(i)}); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	for i := 0; i < n; i++ {
		rpc := receive(t, trans2)
		if h := rpc.Command.(BlockVote).Height; h != int64(i) {
			t.Fatalf("message %d arrived out of order (height %d)", i, h)
		}
	}
}

func TestInmemTransport_UnknownPeer(t *testing.T) {
	_, trans := NewInmemTransport("")
	defer trans.Close()

	err := trans.Send("nowhere", Gossip{})
	if !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestInmemTransport_Closed(t *testing.T) {
	_, trans1 := NewInmemTransport("")
	defer trans1.Close()
	addr2, trans2 := NewInmemTransport("")

	trans1.Connect(addr2, trans2)
	trans2.Close()

	if err := trans1.Send(addr2, Gossip{}); !errors.Is(err, ErrTransportShutdown) {
		t.Fatalf("expected ErrTransportShutdown, got %v", err)
	}

	// Closing twice is harmless.
	if err := trans2.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}
}
