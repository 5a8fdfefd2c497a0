package blocksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/optract/optract/crypto/merkle"
	"github.com/optract/optract/internal/chain"
	"github.com/optract/optract/internal/content"
	"github.com/optract/optract/internal/store"
	"github.com/optract/optract/types"
)

var (
	// ErrNoSnapshot is returned for a registered block without a snapshot
	// pointer.
	ErrNoSnapshot = errors.New("block has no snapshot")
	// ErrRootMismatch is returned when the snapshot leaves do not produce
	// the registered merkle root.
	ErrRootMismatch = errors.New("snapshot does not match merkle root")
	// ErrBadSnapshot is returned for a snapshot document that cannot be
	// read.
	ErrBadSnapshot = errors.New("malformed block snapshot")
)

// snapshotDoc is the document behind BlockInfo.BlockData.
type snapshotDoc struct {
	Data []json.RawMessage `json:"data"`
}

// decodeLeaves returns the tx hashes of a snapshot document.
func decodeLeaves(bz []byte) ([]types.Hash, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(bz, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrBadSnapshot)
	}
	var leaves []types.Hash
	if err := json.Unmarshal(doc.Data[0], &leaves); err != nil {
		return nil, fmt.Errorf("%w: leaves: %v", ErrBadSnapshot, err)
	}
	return leaves, nil
}

// fetchBlock reads the registry entry of blockNo and returns the verified
// snapshot leaves. Nothing is stored.
func fetchBlock(
	ctx context.Context,
	query chain.Query,
	cs content.Store,
	blockNo uint64,
) (store.BlockRecord, error) {
	info, err := query.BlockInfo(ctx, blockNo)
	if err != nil {
		return store.BlockRecord{}, fmt.Errorf("querying block %d: %w", blockNo, err)
	}
	if types.IsZeroHash(info.BlockData) {
		return store.BlockRecord{}, fmt.Errorf("block %d: %w", blockNo, ErrNoSnapshot)
	}

	bz, err := cs.Fetch(ctx, info.BlockData)
	if err != nil {
		return store.BlockRecord{}, fmt.Errorf("fetching snapshot of block %d: %w", blockNo, err)
	}
	leaves, err := decodeLeaves(bz)
	if err != nil {
		return store.BlockRecord{}, fmt.Errorf("block %d: %w", blockNo, err)
	}
	if root := merkle.BuildTree(leaves).Root(); root != info.MerkleRoot {
		return store.BlockRecord{}, fmt.Errorf("block %d: %w: got %x, registry has %x",
			blockNo, ErrRootMismatch, root, info.MerkleRoot)
	}

	return store.BlockRecord{
		BlockNo:    blockNo,
		EthBlockNo: info.EthBlockNo,
		MerkleRoot: info.MerkleRoot,
		Leaves:     leaves,
		Snapshot:   info.BlockData,
	}, nil
}
