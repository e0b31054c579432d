package hashring

import (
	"sort"
)

// Snapshot is an immutable view of the ring. Ring mutations never touch a
// published snapshot; they build and publish a new one.
type Snapshot struct {
	tokens []Token // sorted by Hash, then NodeID
	nodes  map[string]Node
	vnodes map[string]int
	down   map[string]struct{}
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		tokens: []Token{},
		nodes:  map[string]Node{},
		vnodes: map[string]int{},
		down:   map[string]struct{}{},
	}
}

// clone returns a deep copy that a writer may mutate before publishing.
func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		tokens: make([]Token, len(s.tokens)),
		nodes:  make(map[string]Node, len(s.nodes)),
		vnodes: make(map[string]int, len(s.vnodes)),
		down:   make(map[string]struct{}, len(s.down)),
	}
	copy(c.tokens, s.tokens)
	for id, n := range s.nodes {
		c.nodes[id] = n
	}
	for id, v := range s.vnodes {
		c.vnodes[id] = v
	}
	for id := range s.down {
		c.down[id] = struct{}{}
	}
	return c
}

// Owners walks clockwise from the key's hash and returns up to count
// distinct live nodes. The first node is the primary.
func (s *Snapshot) Owners(key string, count int) []Node {
	return s.OwnersForHash(HashKey(key), count)
}

// OwnersForHash is Owners for a precomputed ring position.
func (s *Snapshot) OwnersForHash(hash uint64, count int) []Node {
	if count <= 0 || len(s.tokens) == 0 {
		return nil
	}

	live := len(s.nodes) - len(s.down)
	if count > live {
		count = live
	}
	if count <= 0 {
		return nil
	}

	owners := make([]Node, 0, count)
	seen := make(map[string]struct{}, count)

	idx := sort.Search(len(s.tokens), func(i int) bool {
		return s.tokens[i].Hash >= hash
	})

	for step := 0; step < len(s.tokens) && len(owners) < count; step++ {
		tok := s.tokens[(idx+step)%len(s.tokens)]
		if _, dup := seen[tok.NodeID]; dup {
			continue
		}
		seen[tok.NodeID] = struct{}{}
		if _, isDown := s.down[tok.NodeID]; isDown {
			continue
		}
		owners = append(owners, s.nodes[tok.NodeID])
	}
	return owners
}

// Primary returns the first live owner of key.
func (s *Snapshot) Primary(key string) (Node, bool) {
	owners := s.Owners(key, 1)
	if len(owners) == 0 {
		return Node{}, false
	}
	return owners[0], true
}

// IsOwner reports whether nodeID is among the first count owners of key.
func (s *Snapshot) IsOwner(key, nodeID string, count int) bool {
	for _, n := range s.Owners(key, count) {
		if n.ID == nodeID {
			return true
		}
	}
	return false
}

// Node looks up a physical node by ID.
func (s *Snapshot) Node(id string) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Nodes returns all physical nodes sorted by ID, including nodes marked down.
func (s *Snapshot) Nodes() []Node {
	nodes := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// IsDown reports whether a node is on the ring but skipped for ownership.
func (s *Snapshot) IsDown(id string) bool {
	_, ok := s.down[id]
	return ok
}

// Len returns the number of physical nodes.
func (s *Snapshot) Len() int {
	return len(s.nodes)
}

// LiveLen returns the number of physical nodes not marked down.
func (s *Snapshot) LiveLen() int {
	return len(s.nodes) - len(s.down)
}

// TokenCount returns the number of virtual tokens on the ring.
func (s *Snapshot) TokenCount() int {
	return len(s.tokens)
}

// TokensOf returns the sorted token hashes owned by a node.
func (s *Snapshot) TokensOf(id string) []uint64 {
	var hashes []uint64
	for _, t := range s.tokens {
		if t.NodeID == id {
			hashes = append(hashes, t.Hash)
		}
	}
	return hashes
}
