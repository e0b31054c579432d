package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
)

// Tree is a fixed-size heap-ordered Merkle tree.
// The tree is stored as a flattened array where:
// - Index 0 is the root.
// - Left Child of i: 2i + 1
// - Right Child of i: 2i + 2
// Empty buckets hash to "" and a parent of two empty children is "".
type Tree struct {
	nodes      []string
	numLeaves  int
	leafOffset int
}

// ValidateLeafCount reports whether numLeaves can size a tree.
func ValidateLeafCount(numLeaves int) error {
	if numLeaves < 2 || (numLeaves&(numLeaves-1)) != 0 {
		return fmt.Errorf("numLeaves must be a power of 2 and >= 2, got %d", numLeaves)
	}
	return nil
}

// New creates an empty tree. numLeaves must be a power of 2 (e.g., 1024).
func New(numLeaves int) (*Tree, error) {
	if err := ValidateLeafCount(numLeaves); err != nil {
		return nil, err
	}
	return &Tree{
		nodes:      make([]string, 2*numLeaves-1),
		numLeaves:  numLeaves,
		leafOffset: numLeaves - 1,
	}, nil
}

// Item is one versioned key folded into a bucket hash.
type Item struct {
	Key     string
	Version uint64
}

// Build hashes items into their buckets and computes every parent.
// Leaf hash is sha256 over the bucket's sorted "key@version" lines.
func Build(numLeaves int, items []Item, bucketOf func(key string) int) (*Tree, error) {
	t, err := New(numLeaves)
	if err != nil {
		return nil, err
	}

	buckets := make(map[int][]Item)
	for _, it := range items {
		b := bucketOf(it.Key)
		if b < 0 || b >= numLeaves {
			return nil, fmt.Errorf("bucket out of range for key %q: %d", it.Key, b)
		}
		buckets[b] = append(buckets[b], it)
	}

	for b, list := range buckets {
		t.nodes[t.leafOffset+b] = LeafHash(list)
	}
	for idx := t.leafOffset - 1; idx >= 0; idx-- {
		t.nodes[idx] = hashPair(t.nodes[2*idx+1], t.nodes[2*idx+2])
	}
	return t, nil
}

// LeafHash is the bucket hash of a set of items, independent of their order.
func LeafHash(items []Item) string {
	if len(items) == 0 {
		return ""
	}
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key == sorted[j].Key {
			return sorted[i].Version < sorted[j].Version
		}
		return sorted[i].Key < sorted[j].Key
	})

	h := sha256.New()
	for _, it := range sorted {
		h.Write([]byte(it.Key))
		h.Write([]byte{'@'})
		h.Write([]byte(strconv.FormatUint(it.Version, 10)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Root returns the root hash.
func (t *Tree) Root() string {
	return t.nodes[0]
}

// NumLeaves returns the bucket count.
func (t *Tree) NumLeaves() int {
	return t.numLeaves
}

// Size returns the total number of heap nodes.
func (t *Tree) Size() int {
	return len(t.nodes)
}

// Node returns the hash at a heap index.
func (t *Tree) Node(idx int) (string, error) {
	if idx < 0 || idx >= len(t.nodes) {
		return "", fmt.Errorf("index out of range: %d", idx)
	}
	return t.nodes[idx], nil
}

// Nodes returns the hashes at the requested heap indices.
func (t *Tree) Nodes(indices []int) ([]string, error) {
	out := make([]string, len(indices))
	for i, idx := range indices {
		h, err := t.Node(idx)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

// IsLeaf reports whether a heap index is a bucket.
func (t *Tree) IsLeaf(idx int) bool {
	return idx >= t.leafOffset
}

// Bucket converts a leaf heap index to its bucket number.
func (t *Tree) Bucket(idx int) int {
	return idx - t.leafOffset
}

func hashPair(left, right string) string {
	if left == "" && right == "" {
		return ""
	}
	h := sha256.New()
	h.Write([]byte(left))
	h.Write([]byte(right))
	return hex.EncodeToString(h.Sum(nil))
}
