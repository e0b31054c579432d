package merkle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modBucket(n int) func(string) int {
	return func(key string) int {
		var sum int
		for _, c := range key {
			sum += int(c)
		}
		return sum % n
	}
}

func TestTree_Layout(t *testing.T) {
	tree, err := New(4)
	require.NoError(t, err)
	assert.Equal(t, 4, tree.NumLeaves())
	assert.Equal(t, 7, tree.Size())
	assert.Equal(t, "", tree.Root())

	x := []Item{{Key: "x", Version: 1}}
	y := []Item{{Key: "y", Version: 2}}
	bucketOf := func(key string) int {
		if key == "x" {
			return 0
		}
		return 1
	}
	tree, err = Build(4, append(x, y...), bucketOf)
	require.NoError(t, err)
	assert.NotEmpty(t, tree.Root())

	right, err := tree.Node(2)
	require.NoError(t, err)
	assert.Equal(t, "", right, "buckets 2 and 3 are empty")

	leaves, err := tree.Nodes([]int{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []string{LeafHash(x), LeafHash(y)}, leaves)

	_, err = tree.Node(7)
	assert.Error(t, err)
}

func TestValidateLeafCount(t *testing.T) {
	for _, n := range []int{-4, 0, 1, 3, 1000} {
		assert.Error(t, ValidateLeafCount(n), "n=%d", n)
		_, err := New(n)
		assert.Error(t, err, "n=%d", n)
	}
	for _, n := range []int{2, 64, 1024} {
		assert.NoError(t, ValidateLeafCount(n), "n=%d", n)
	}
}

func TestBuild_OrderIndependent(t *testing.T) {
	items := []Item{{Key: "a", Version: 1}, {Key: "b", Version: 4}, {Key: "c", Version: 2}}
	reversed := []Item{items[2], items[1], items[0]}

	t1, err := Build(8, items, modBucket(8))
	require.NoError(t, err)
	t2, err := Build(8, reversed, modBucket(8))
	require.NoError(t, err)
	assert.Equal(t, t1.Root(), t2.Root())

	bumped := []Item{{Key: "a", Version: 1}, {Key: "b", Version: 5}, {Key: "c", Version: 2}}
	t3, err := Build(8, bumped, modBucket(8))
	require.NoError(t, err)
	assert.NotEqual(t, t1.Root(), t3.Root())
}

func TestBuild_BadBucket(t *testing.T) {
	_, err := Build(4, []Item{{Key: "a"}}, func(string) int { return 9 })
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	var local, remote []Item
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		local = append(local, Item{Key: key, Version: 1})
		remote = append(remote, Item{Key: key, Version: 1})
	}
	remote[10].Version = 2
	remote = append(remote, Item{Key: "only-remote", Version: 1})

	bucketOf := modBucket(64)
	lt, err := Build(64, local, bucketOf)
	require.NoError(t, err)
	rt, err := Build(64, remote, bucketOf)
	require.NoError(t, err)

	calls := 0
	fetch := func(_ context.Context, indices []int) ([]string, error) {
		calls++
		return rt.Nodes(indices)
	}

	buckets, err := Diff(context.Background(), lt, fetch)
	require.NoError(t, err)
	assert.ElementsMatch(t, dedupe([]int{bucketOf("key-10"), bucketOf("only-remote")}), buckets)
	assert.Equal(t, 7, calls, "one round trip per level")

	same, err := Diff(context.Background(), lt, func(_ context.Context, indices []int) ([]string, error) {
		return lt.Nodes(indices)
	})
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestDiff_FetchError(t *testing.T) {
	lt, _ := New(4)
	_, err := Diff(context.Background(), lt, func(context.Context, []int) ([]string, error) {
		return nil, errors.New("unreachable")
	})
	assert.Error(t, err)

	_, err = Diff(context.Background(), lt, func(context.Context, []int) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	assert.Error(t, err)
}

func dedupe(in []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
