// Package merkle builds binary keccak-256 trees over transaction hashes and
// proves membership in them.
//
// Leaves are used as they are, without a leaf hash. A level with an odd
// number of nodes pairs its last node with itself, so a tree of n leaves has
// ceil(log2(n)) levels above the leaves and every proof has that many
// siblings.
package merkle

import (
	"github.com/optract/optract/types"
)

// Tree keeps every level of the tree, leaves first.
type Tree struct {
	levels [][]types.Hash
}

// BuildTree hashes leaves pairwise up to a single root. The leaf slice is
// copied.
func BuildTree(leaves []types.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}

	level := make([]types.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]types.Hash{level}

	for len(level) > 1 {
		next := make([]types.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, innerHash(level[i], right))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}
}

// Root returns the root hash, or the zero hash for an empty tree.
func (t *Tree) Root() types.Hash {
	if len(t.levels) == 0 {
		return types.ZeroHash
	}
	return t.levels[len(t.levels)-1][0]
}

// Leaves returns the leaves in insertion order.
func (t *Tree) Leaves() []types.Hash {
	if len(t.levels) == 0 {
		return nil
	}
	return t.levels[0]
}

// Depth is the number of levels above the leaves.
func (t *Tree) Depth() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels) - 1
}

// IndexOf returns the position of the first leaf equal to leaf, or -1.
func (t *Tree) IndexOf(leaf types.Hash) int {
	for i, l := range t.Leaves() {
		if l == leaf {
			return i
		}
	}
	return -1
}
