package peers

import (
	"sort"
	"sync"
)

// Registry is the set of peers known to a node, split between validators
// and clients. It is safe for concurrent use.
type Registry struct {
	sync.RWMutex
	byID   map[int64]*Peer
	byAddr map[string]*Peer

	validators []*Peer // sorted by id
	clients    []*Peer // sorted by id
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[int64]*Peer),
		byAddr: make(map[string]*Peer),
	}
}

// Register adds a peer the first time its id is seen and returns true.
// Announcing a known id again changes nothing and returns false.
func (r *Registry) Register(id int64, isClient bool, netAddr string) bool {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.byID[id]; ok {
		return false
	}

	p := NewPeer(id, isClient, netAddr)

	r.byID[id] = p
	if netAddr != "" {
		r.byAddr[netAddr] = p
	}

	if isClient {
		r.clients = insertSorted(r.clients, p)
	} else {
		r.validators = insertSorted(r.validators, p)
	}

	return true
}

func insertSorted(peers []*Peer, p *Peer) []*Peer {
	i := sort.Search(len(peers), func(i int) bool { return peers[i].ID >= p.ID })
	peers = append(peers, nil)
	copy(peers[i+1:], peers[i:])
	peers[i] = p
	return peers
}

// ByID returns the peer with the given id.
func (r *Registry) ByID(id int64) (*Peer, bool) {
	r.RLock()
	defer r.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// ByAddr returns the peer reachable at the given address.
func (r *Registry) ByAddr(addr string) (*Peer, bool) {
	r.RLock()
	defer r.RUnlock()
	p, ok := r.byAddr[addr]
	return p, ok
}

// IsClient returns true if id is a known client.
func (r *Registry) IsClient(id int64) bool {
	p, ok := r.ByID(id)
	return ok && p.IsClient
}

// IsValidator returns true if id is a known validator.
func (r *Registry) IsValidator(id int64) bool {
	p, ok := r.ByID(id)
	return ok && !p.IsClient
}

// Validators returns the known validators sorted by id.
func (r *Registry) Validators() []*Peer {
	r.RLock()
	defer r.RUnlock()
	res := make([]*Peer, len(r.validators))
	copy(res, r.validators)
	return res
}

// Clients returns the known clients sorted by id.
func (r *Registry) Clients() []*Peer {
	r.RLock()
	defer r.RUnlock()
	res := make([]*Peer, len(r.clients))
	copy(res, r.clients)
	return res
}

// ValidatorCount returns the number of known validators.
func (r *Registry) ValidatorCount() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.validators)
}

// ClientCount returns the number of known clients.
func (r *Registry) ClientCount() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.clients)
}

// Len returns the total number of known peers.
func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.byID)
}
