package blocksync

import (
	"context"
	"errors"

	"github.com/optract/optract/crypto/merkle"
	"github.com/optract/optract/internal/chain"
	"github.com/optract/optract/internal/content"
	"github.com/optract/optract/internal/store"
	"github.com/optract/optract/types"
)

// Prover builds inclusion proofs for transactions of side blocks.
type Prover struct {
	chain   chain.Query
	content content.Store
	store   *store.Store
}

// NewProver returns a Prover reading synced blocks from st and falling back
// to the chain and content store for the rest.
func NewProver(query chain.Query, cs content.Store, st *store.Store) *Prover {
	return &Prover{chain: query, content: cs, store: st}
}

// Tree returns the merkle tree of blockNo.
func (p *Prover) Tree(ctx context.Context, blockNo uint64) (*merkle.Tree, error) {
	rec, err := p.store.LoadBlock(blockNo)
	switch {
	case err == nil:
		return merkle.BuildTree(rec.Leaves), nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	fetched, err := fetchBlock(ctx, p.chain, p.content, blockNo)
	if err != nil {
		return nil, err
	}
	return merkle.BuildTree(fetched.Leaves), nil
}

// ProofSet returns the inclusion proof of leaf in blockNo. The proof root
// is the registered root of the block.
func (p *Prover) ProofSet(ctx context.Context, blockNo uint64, leaf types.Hash) (*merkle.Proof, error) {
	tree, err := p.Tree(ctx, blockNo)
	if err != nil {
		return nil, err
	}
	return merkle.ProveInclusion(tree, leaf)
}

// ValidateTx reports whether leaf is included in blockNo. A leaf missing
// from the block is not an error.
func (p *Prover) ValidateTx(ctx context.Context, leaf types.Hash, blockNo uint64) (bool, error) {
	proof, err := p.ProofSet(ctx, blockNo, leaf)
	switch {
	case errors.Is(err, merkle.ErrLeafNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return merkle.VerifyInclusion(leaf, proof), nil
}
