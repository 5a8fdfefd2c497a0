// Package chain reads round and block state from the block registry
// contract.
//
// Query is the narrow capability the rest of the node is given. Client
// implements it over an Ethereum JSON-RPC endpoint and caches every read
// until the round sync invalidates it.
package chain

import (
	"context"
	"fmt"

	"github.com/optract/optract/types"
)

// Cache keys of the registry reads. Round scoped keys are invalidated when
// a new block is observed.
const (
	KeyBlockNo       = "block_no"
	KeyRoundInfo     = "round_info"
	KeyRoundProgress = "round_progress"
)

// RoundResultsKey is the cache key of RoundResults(round).
func RoundResultsKey(round uint64) string { return fmt.Sprintf("round_results_%d", round) }

// RoundLotteryKey is the cache key of RoundLottery(round).
func RoundLotteryKey(round uint64) string { return fmt.Sprintf("round_lottery_%d", round) }

// BlockInfoKey is the cache key of BlockInfo(blockNo).
func BlockInfoKey(blockNo uint64) string { return fmt.Sprintf("block_info_%d", blockNo) }

// RoundInfo is the registry's view of the running opround.
type RoundInfo struct {
	Round uint64
	OID   types.Hash
	// Start is the block the round started at.
	Start uint64
	// Deadline is the last block accepting votes.
	Deadline uint64
}

// Lottery is the draw of a round. Draw is zero until the round is drawn.
type Lottery struct {
	Draw      uint64
	WinNumber types.Hash
}

// Drawn reports whether the lottery has been drawn.
func (l Lottery) Drawn() bool { return l.Draw != 0 }

// RoundResults are the artifacts published when a round closes. A zero
// pointer means the round produced no such artifact.
type RoundResults struct {
	Round            uint64
	MinSuccessRate   uint64
	SuccessRateTable types.Hash
	FinalistList     types.Hash
}

// RoundProgress counts what the registry has accepted in the running
// round.
type RoundProgress struct {
	Round  uint64
	OID    types.Hash
	Votes  uint64
	Claims uint64
}

// BlockInfo describes a committed side block.
type BlockInfo struct {
	BlockNo    uint64
	EthBlockNo uint64
	MerkleRoot types.Hash
	// BlockData points at the block snapshot in the content store.
	BlockData types.Hash
	// AIDData points at the article index of the block.
	AIDData   types.Hash
	Timestamp uint64
}

// Query is the chain capability the node depends on.
type Query interface {
	// BlockNumber returns the pending side block number.
	BlockNumber(ctx context.Context) (uint64, error)
	CurrentRound(ctx context.Context) (RoundInfo, error)
	RoundLottery(ctx context.Context, round uint64) (Lottery, error)
	RoundResults(ctx context.Context, round uint64) (RoundResults, error)
	RoundProgress(ctx context.Context) (RoundProgress, error)
	BlockInfo(ctx context.Context, blockNo uint64) (BlockInfo, error)

	// InvalidateCache drops the cached result stored under key.
	InvalidateCache(key string)

	// SwitchEndpoint moves the client to url. On error the client stays on
	// its current endpoint.
	SwitchEndpoint(ctx context.Context, url string) error
	Endpoint() string
	NetworkID() string
}
