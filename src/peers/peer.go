package peers

import "fmt"

// Peer is a node known by id and network address.
type Peer struct {
	ID       int64
	IsClient bool
	NetAddr  string
}

// NewPeer ...
func NewPeer(id int64, isClient bool, netAddr string) *Peer {
	return &Peer{
		ID:       id,
		IsClient: isClient,
		NetAddr:  netAddr,
	}
}

// Role returns "client" or "validator".
func (p *Peer) Role() string {
	if p.IsClient {
		return "client"
	}
	return "validator"
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s %d@%s", p.Role(), p.ID, p.NetAddr)
}

// ExcludePeers returns the peers whose ids are not in ids.
func ExcludePeers(peers []*Peer, ids ...int64) []*Peer {
	res := make([]*Peer, 0, len(peers))
	for _, p := range peers {
		excluded := false
		for _, id := range ids {
			if p.ID == id {
				excluded = true
				break
			}
		}
		if !excluded {
			res = append(res, p)
		}
	}
	return res
}
