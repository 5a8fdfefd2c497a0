package merkle

import (
	"errors"
	"fmt"

	"github.com/optract/optract/types"
)

// MaxDepth is the deepest proof a transaction can carry: 768 bytes of
// siblings and 3 bytes of side bits.
const MaxDepth = 24

var (
	// ErrLeafNotFound is returned when the leaf is not part of the tree.
	ErrLeafNotFound = errors.New("leaf not found in tree")

	// ErrInvalidProof is returned for proofs whose shape is inconsistent.
	ErrInvalidProof = errors.New("invalid merkle proof")
)

// Proof is the path from a leaf to the root. Sides[i] is true when
// Siblings[i] is the left operand at level i.
type Proof struct {
	Siblings []types.Hash
	Sides    []bool
	Root     types.Hash
}

// ProveInclusion returns the proof for the first occurrence of leaf.
func ProveInclusion(tree *Tree, leaf types.Hash) (*Proof, error) {
	idx := tree.IndexOf(leaf)
	if idx < 0 {
		return nil, ErrLeafNotFound
	}

	depth := tree.Depth()
	proof := &Proof{
		Siblings: make([]types.Hash, 0, depth),
		Sides:    make([]bool, 0, depth),
		Root:     tree.Root(),
	}

	for _, level := range tree.levels[:depth] {
		var sibling types.Hash
		left := idx%2 == 1
		switch {
		case left:
			sibling = level[idx-1]
		case idx+1 < len(level):
			sibling = level[idx+1]
		default:
			sibling = level[idx]
		}
		proof.Siblings = append(proof.Siblings, sibling)
		proof.Sides = append(proof.Sides, left)
		idx /= 2
	}

	return proof, nil
}

// VerifyInclusion folds leaf with the proof path and compares the result
// with the claimed root. It needs no tree.
func VerifyInclusion(leaf types.Hash, proof *Proof) bool {
	if proof == nil {
		return false
	}
	return proof.Verify(leaf)
}

// ValidateBasic checks the proof shape.
func (p *Proof) ValidateBasic() error {
	if len(p.Siblings) != len(p.Sides) {
		return fmt.Errorf("%w: %d siblings but %d side bits", ErrInvalidProof, len(p.Siblings), len(p.Sides))
	}
	if len(p.Siblings) > MaxDepth {
		return fmt.Errorf("%w: depth %d exceeds %d", ErrInvalidProof, len(p.Siblings), MaxDepth)
	}
	return nil
}

// Verify reports whether leaf hashes up to p.Root along p.
func (p *Proof) Verify(leaf types.Hash) bool {
	if p.ValidateBasic() != nil {
		return false
	}
	return p.ComputeRoot(leaf) == p.Root
}

// ComputeRoot folds leaf with the siblings.
func (p *Proof) ComputeRoot(leaf types.Hash) types.Hash {
	node := leaf
	for i, sibling := range p.Siblings {
		if p.Sides[i] {
			node = innerHash(sibling, node)
		} else {
			node = innerHash(node, sibling)
		}
	}
	return node
}

// Pack returns the wire form carried in transactions: concatenated siblings
// and the side bits, bit i in byte i/8, least significant bit first.
func (p *Proof) Pack() (siblings, sides []byte) {
	siblings = make([]byte, 0, len(p.Siblings)*32)
	for _, s := range p.Siblings {
		siblings = append(siblings, s.Bytes()...)
	}
	sides = make([]byte, (len(p.Sides)+7)/8)
	for i, left := range p.Sides {
		if left {
			sides[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return siblings, sides
}

// UnpackProof is the inverse of Pack.
func UnpackProof(siblings, sides []byte, root types.Hash) (*Proof, error) {
	if len(siblings)%32 != 0 {
		return nil, fmt.Errorf("%w: sibling bytes not a multiple of 32", ErrInvalidProof)
	}
	depth := len(siblings) / 32
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds %d", ErrInvalidProof, depth, MaxDepth)
	}
	if len(sides) < (depth+7)/8 {
		return nil, fmt.Errorf("%w: %d side bytes for depth %d", ErrInvalidProof, len(sides), depth)
	}

	p := &Proof{
		Siblings: make([]types.Hash, depth),
		Sides:    make([]bool, depth),
		Root:     root,
	}
	for i := 0; i < depth; i++ {
		copy(p.Siblings[i][:], siblings[i*32:(i+1)*32])
		p.Sides[i] = sides[i/8]&(1<<(uint(i)%8)) != 0
	}
	return p, nil
}

// Depth is the number of siblings in the path.
func (p *Proof) Depth() int { return len(p.Siblings) }
