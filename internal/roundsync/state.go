package roundsync

import (
	"encoding/json"

	"github.com/optract/optract/types"
)

// RoundBook is the per-round ledger of articles, votes and claims. A new
// book replaces the old one when the opround advances.
type RoundBook struct {
	// VotesByArticle counts distinct voters per article.
	VotesByArticle map[types.Hash]uint64
	// CommentsByArticle counts votes carrying a comment per article.
	CommentsByArticle map[types.Hash]uint64
	URLByArticle      map[types.Hash]string
	// Curated lists the articles each account proposed.
	Curated map[types.Address][]types.Hash
	// Voted lists the articles each account voted on.
	Voted map[types.Address][]types.Hash
	// VoteWatch and ClaimWatch map a tx hash to the block it refers to, for
	// txs whose inclusion is still to be confirmed.
	VoteWatch  map[types.Hash]uint64
	ClaimWatch map[types.Hash]uint64
}

// NewRoundBook returns an empty book.
func NewRoundBook() *RoundBook {
	return &RoundBook{
		VotesByArticle:    make(map[types.Hash]uint64),
		CommentsByArticle: make(map[types.Hash]uint64),
		URLByArticle:      make(map[types.Hash]string),
		Curated:           make(map[types.Address][]types.Hash),
		Voted:             make(map[types.Address][]types.Hash),
		VoteWatch:         make(map[types.Hash]uint64),
		ClaimWatch:        make(map[types.Hash]uint64),
	}
}

// Empty reports whether nothing was recorded in the book.
func (b *RoundBook) Empty() bool {
	return len(b.VotesByArticle) == 0 && len(b.CommentsByArticle) == 0 &&
		len(b.URLByArticle) == 0 && len(b.Curated) == 0 && len(b.Voted) == 0 &&
		len(b.VoteWatch) == 0 && len(b.ClaimWatch) == 0
}

// RecordCuration registers the article proposed by tx.
func (b *RoundBook) RecordCuration(tx types.Tx) {
	if _, ok := b.URLByArticle[tx.AID]; !ok {
		b.URLByArticle[tx.AID] = tx.URL
	}
	if !contains(b.Curated[tx.Account], tx.AID) {
		b.Curated[tx.Account] = append(b.Curated[tx.Account], tx.AID)
	}
}

// RecordVote counts the vote in tx. A second vote by the same account on
// the same article is ignored and false returned.
func (b *RoundBook) RecordVote(tx types.Tx) bool {
	if contains(b.Voted[tx.Account], tx.AID) {
		return false
	}
	b.Voted[tx.Account] = append(b.Voted[tx.Account], tx.AID)
	b.VotesByArticle[tx.AID]++
	if !types.IsZeroHash(tx.Comment) {
		b.RecordComment(tx)
	}
	b.VoteWatch[tx.TxHash] = tx.V1Block
	return true
}

// RecordComment counts the comment attached to tx.
func (b *RoundBook) RecordComment(tx types.Tx) {
	b.CommentsByArticle[tx.AID]++
}

// RecordClaim watches the claim in tx.
func (b *RoundBook) RecordClaim(tx types.Tx) {
	b.ClaimWatch[tx.TxHash] = tx.V2Block
}

func contains(hs []types.Hash, h types.Hash) bool {
	for _, x := range hs {
		if x == h {
			return true
		}
	}
	return false
}

// PreviousRound holds the artifacts published when the previous opround
// closed. Zero pointers mean the round produced no artifact.
type PreviousRound struct {
	MinSuccessRate   uint64
	SuccessRateTable types.Hash
	FinalistList     types.Hash
	SuccessRates     map[string]json.RawMessage
	Finalists        []json.RawMessage
}

// GameState is the node's view of the curation game.
type GameState struct {
	// Epoch is the confirmed side block number.
	Epoch uint64
	// LastSynced is the last block whose data is stored locally.
	LastSynced uint64

	// Opround is -1 until the first round observation.
	Opround int64
	OID     types.Hash
	OpStart uint64
	// OpSync is the last block synced within the current round, -1 if none.
	OpSync    int64
	Drawn     bool
	Lottery   uint64
	WinNumber types.Hash

	Book     *RoundBook
	Previous PreviousRound
}

// NewGameState returns the state of a node that has observed nothing.
func NewGameState() GameState {
	return GameState{
		Opround: -1,
		OpSync:  -1,
		Book:    NewRoundBook(),
	}
}

// Synchronized reports whether the local data is consistent with the
// observed epoch: exactly one block behind it, and either the round just
// started and has nothing to confirm, or the round was confirmed at the
// last synced block, or this is the genesis round.
func (s GameState) Synchronized() bool {
	if s.Epoch != s.LastSynced+1 {
		return false
	}
	switch {
	case s.OpStart == s.Epoch && s.OpSync == -1:
		return true
	case s.OpStart < s.Epoch && s.OpSync == int64(s.LastSynced):
		return true
	case s.Epoch == 1 && s.OpStart == 0:
		return true
	default:
		return false
	}
}
