package hashring

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

const (
	// DefaultVirtualNodes is the default number of virtual nodes per physical node.
	// A higher number improves distribution balance but increases ring size.
	DefaultVirtualNodes = 128
)

// Ring manages the consistent hashing ring.
//
// Writers are serialized by mu and publish a fresh Snapshot on every change;
// readers load the current snapshot without locking.
type Ring struct {
	mu           sync.Mutex
	current      atomic.Pointer[Snapshot]
	virtualNodes int
}

// New creates an empty ring that places virtualNodes tokens per physical node.
func New(virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	r := &Ring{virtualNodes: virtualNodes}
	r.current.Store(emptySnapshot())
	return r
}

// VirtualNodes returns the configured token count per physical node.
func (r *Ring) VirtualNodes() int {
	return r.virtualNodes
}

// AddNode places virtualCount tokens for node. A non-positive virtualCount
// uses the ring default.
func (r *Ring) AddNode(node Node, virtualCount int) error {
	if virtualCount <= 0 {
		virtualCount = r.virtualNodes
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if _, exists := cur.nodes[node.ID]; exists {
		return &DuplicateNodeError{NodeID: node.ID}
	}

	next := cur.clone()
	next.nodes[node.ID] = node
	next.vnodes[node.ID] = virtualCount
	for _, h := range TokenHashes(node.ID, virtualCount) {
		next.tokens = append(next.tokens, Token{Hash: h, NodeID: node.ID})
	}
	sortTokens(next.tokens)

	r.current.Store(next)
	return nil
}

// RemoveNode removes every token of a physical node.
func (r *Ring) RemoveNode(nodeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if _, exists := cur.nodes[nodeID]; !exists {
		return &NodeNotFoundError{NodeID: nodeID}
	}

	next := cur.clone()
	delete(next.nodes, nodeID)
	delete(next.vnodes, nodeID)
	delete(next.down, nodeID)

	// Filter out tokens belonging to this node
	tokens := make([]Token, 0, len(next.tokens))
	for _, t := range next.tokens {
		if t.NodeID != nodeID {
			tokens = append(tokens, t)
		}
	}
	next.tokens = tokens

	r.current.Store(next)
	return nil
}

// UpdateAddr refreshes a node's address without moving its tokens.
func (r *Ring) UpdateAddr(nodeID, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	n, exists := cur.nodes[nodeID]
	if !exists {
		return &NodeNotFoundError{NodeID: nodeID}
	}
	if n.Addr == addr {
		return nil
	}
	next := cur.clone()
	n.Addr = addr
	next.nodes[nodeID] = n
	r.current.Store(next)
	return nil
}

// MarkDown keeps a node's tokens but skips it in Owners.
func (r *Ring) MarkDown(nodeID string) error {
	return r.setDown(nodeID, true)
}

// MarkUp reverses MarkDown.
func (r *Ring) MarkUp(nodeID string) error {
	return r.setDown(nodeID, false)
}

func (r *Ring) setDown(nodeID string, down bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if _, exists := cur.nodes[nodeID]; !exists {
		return &NodeNotFoundError{NodeID: nodeID}
	}
	if _, isDown := cur.down[nodeID]; isDown == down {
		return nil
	}

	next := cur.clone()
	if down {
		next.down[nodeID] = struct{}{}
	} else {
		delete(next.down, nodeID)
	}
	r.current.Store(next)
	return nil
}

// Replace publishes an externally built snapshot, e.g. one rebuilt from a
// peer's topology.
func (r *Ring) Replace(s *Snapshot) {
	if s == nil {
		s = emptySnapshot()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Store(s)
}

// Snapshot returns the current read-only view.
func (r *Ring) Snapshot() *Snapshot {
	return r.current.Load()
}

// Owners returns up to count distinct live owners of key from the current view.
func (r *Ring) Owners(key string, count int) []Node {
	return r.current.Load().Owners(key, count)
}

// Build creates a standalone snapshot from a node list. Nodes listed in down
// keep their tokens but are skipped for ownership.
func Build(nodes []Node, virtualCount int, down []string) *Snapshot {
	if virtualCount <= 0 {
		virtualCount = DefaultVirtualNodes
	}
	s := emptySnapshot()
	for _, n := range nodes {
		if _, exists := s.nodes[n.ID]; exists {
			continue
		}
		s.nodes[n.ID] = n
		s.vnodes[n.ID] = virtualCount
		for _, h := range TokenHashes(n.ID, virtualCount) {
			s.tokens = append(s.tokens, Token{Hash: h, NodeID: n.ID})
		}
	}
	for _, id := range down {
		if _, exists := s.nodes[id]; exists {
			s.down[id] = struct{}{}
		}
	}
	sortTokens(s.tokens)
	return s
}

// TokenHashes returns the token positions a node receives, derived from
// hash(nodeID + ":" + i).
func TokenHashes(nodeID string, virtualCount int) []uint64 {
	hashes := make([]uint64, 0, virtualCount)
	for i := 0; i < virtualCount; i++ {
		hashes = append(hashes, HashKey(fmt.Sprintf("%s:%d", nodeID, i)))
	}
	return hashes
}

// HashKey is the ring hash. It must stay fixed for a deployment; changing it
// reassigns every key.
func HashKey(key string) uint64 {
	return murmur3.Sum64([]byte(key))
}

func sortTokens(tokens []Token) {
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Hash == tokens[j].Hash {
			return tokens[i].NodeID < tokens[j].NodeID
		}
		return tokens[i].Hash < tokens[j].Hash
	})
}
