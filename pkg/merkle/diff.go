package merkle

import (
	"context"
	"fmt"
)

// FetchFunc returns a remote tree's hashes at the given heap indices, in order.
type FetchFunc func(ctx context.Context, indices []int) ([]string, error)

// Diff walks the remote tree level by level, descending only into subtrees
// whose hashes differ from local, and returns the mismatching buckets.
func Diff(ctx context.Context, local *Tree, fetch FetchFunc) ([]int, error) {
	frontier := []int{0}
	var buckets []int

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remote, err := fetch(ctx, frontier)
		if err != nil {
			return nil, err
		}
		if len(remote) != len(frontier) {
			return nil, fmt.Errorf("remote returned %d hashes for %d indices", len(remote), len(frontier))
		}

		var next []int
		for i, idx := range frontier {
			if local.nodes[idx] == remote[i] {
				continue
			}
			if local.IsLeaf(idx) {
				buckets = append(buckets, local.Bucket(idx))
				continue
			}
			next = append(next, 2*idx+1, 2*idx+2)
		}
		frontier = next
	}
	return buckets, nil
}
