// Package pending holds the transactions accepted from gossip that are not
// yet part of a synced block.
//
// Transactions are indexed by account in arrival order. A snapshot lists
// accounts in address order and, within an account, transactions in
// arrival order or sorted by hash; the tx hashes of a sorted snapshot are
// the leaves of the next block.
package pending

import (
	"bytes"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/optract/optract/crypto"
	"github.com/optract/optract/crypto/merkle"
	"github.com/optract/optract/types"
)

var (
	// ErrDuplicate is returned when the tx hash is already pooled.
	ErrDuplicate = errors.New("tx already in pool")
	// ErrPoolFull is returned when the pool holds its maximum.
	ErrPoolFull = errors.New("pending pool is full")
	// ErrMissingTxHash is returned for a record without a tx hash.
	ErrMissingTxHash = errors.New("tx has no hash")
)

const (
	// DefaultMaxSize bounds the number of pooled transactions.
	DefaultMaxSize = 50000

	rejectDuplicate = "duplicate"
	rejectFull      = "full"
	rejectHash      = "hash"
)

// Entry is a pooled transaction.
type Entry struct {
	TxHash types.Hash
	// Payload is the keccak-256 of the record with its hash and signature
	// fields cleared.
	Payload types.Hash
	// Data is the record as received.
	Data    []byte
	Account types.Address
	Opround uint64
	// Nonce is the arrival position within the account, from 1. It orders
	// the account's transactions and is not checked against the chain.
	Nonce uint64
	Added time.Time
}

// Snapshot is the pool content as three parallel lists.
type Snapshot struct {
	TxHashes []types.Hash
	Payloads []types.Hash
	TxData   [][]byte
}

// Len returns the number of transactions in the snapshot.
func (s Snapshot) Len() int { return len(s.TxHashes) }

// Option sets an optional parameter on the Pool.
type Option func(*Pool)

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithClock sets the time source for entry stamps.
func WithClock(clk clock.Clock) Option {
	return func(p *Pool) { p.clock = clk }
}

// Pool is safe for concurrent use.
type Pool struct {
	maxSize int
	metrics *Metrics
	clock   clock.Clock

	mtx       sync.RWMutex
	entries   map[types.Hash]*Entry
	byAccount map[types.Address][]types.Hash
	nonces    map[types.Address]uint64

	validators map[types.Address]types.PendingRecord
}

// NewPool returns an empty pool holding at most maxSize transactions. A
// non-positive maxSize means DefaultMaxSize.
func NewPool(maxSize int, options ...Option) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	p := &Pool{
		maxSize:    maxSize,
		metrics:    NopMetrics(),
		clock:      clock.New(),
		entries:    make(map[types.Hash]*Entry),
		byAccount:  make(map[types.Address][]types.Hash),
		nonces:     make(map[types.Address]uint64),
		validators: make(map[types.Address]types.PendingRecord),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Add pools tx. raw is kept as the tx data and must be the record tx was
// decoded from.
func (p *Pool) Add(tx types.Tx, raw []byte) (Entry, error) {
	if types.IsZeroHash(tx.TxHash) {
		p.metrics.Rejected.With("reason", rejectHash).Add(1)
		return Entry{}, ErrMissingTxHash
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if _, ok := p.entries[tx.TxHash]; ok {
		p.metrics.Rejected.With("reason", rejectDuplicate).Add(1)
		return Entry{}, ErrDuplicate
	}
	if len(p.entries) >= p.maxSize {
		p.metrics.Rejected.With("reason", rejectFull).Add(1)
		return Entry{}, ErrPoolFull
	}

	p.nonces[tx.Account]++
	e := &Entry{
		TxHash:  tx.TxHash,
		Payload: PayloadHash(tx),
		Data:    append([]byte(nil), raw...),
		Account: tx.Account,
		Opround: tx.Opround,
		Nonce:   p.nonces[tx.Account],
		Added:   p.clock.Now(),
	}
	p.entries[tx.TxHash] = e
	p.byAccount[tx.Account] = append(p.byAccount[tx.Account], tx.TxHash)
	p.metrics.Size.Set(float64(len(p.entries)))
	return *e, nil
}

// PayloadHash returns the hash of tx with its tx hash and signature
// cleared.
func PayloadHash(tx types.Tx) types.Hash {
	tx.TxHash = types.ZeroHash
	tx.V, tx.R, tx.S = nil, types.ZeroHash, types.ZeroHash
	var h types.Hash
	copy(h[:], crypto.Keccak256(tx.Encode()))
	return h
}

// Has reports whether txHash is pooled.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, ok := p.entries[txHash]
	return ok
}

// Size returns the number of pooled transactions.
func (p *Pool) Size() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.entries)
}

// Snapshot lists the pool by account address. With sortTxs the
// transactions of each account are sorted by hash, otherwise they keep
// arrival order.
func (p *Pool) Snapshot(sortTxs bool) Snapshot {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	accounts := make([]types.Address, 0, len(p.byAccount))
	for acc := range p.byAccount {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i][:], accounts[j][:]) < 0
	})

	snap := Snapshot{
		TxHashes: make([]types.Hash, 0, len(p.entries)),
		Payloads: make([]types.Hash, 0, len(p.entries)),
		TxData:   make([][]byte, 0, len(p.entries)),
	}
	for _, acc := range accounts {
		hashes := append([]types.Hash(nil), p.byAccount[acc]...)
		if sortTxs {
			sort.Slice(hashes, func(i, j int) bool {
				return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
			})
		}
		for _, h := range hashes {
			e := p.entries[h]
			snap.TxHashes = append(snap.TxHashes, h)
			snap.Payloads = append(snap.Payloads, e.Payload)
			snap.TxData = append(snap.TxData, e.Data)
		}
	}
	return snap
}

// Leaves returns the tx hashes of a sorted snapshot.
func (p *Pool) Leaves() []types.Hash {
	return p.Snapshot(true).TxHashes
}

// Root returns the merkle root over Leaves, or the zero hash for an empty
// pool.
func (p *Pool) Root() types.Hash {
	return merkle.BuildTree(p.Leaves()).Root()
}

// Remove drops the given transactions, typically the leaves of a block
// just synced, and returns how many were pooled.
func (p *Pool) Remove(txHashes []types.Hash) int {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	removed := 0
	for _, h := range txHashes {
		if p.drop(h) {
			removed++
		}
	}
	p.metrics.Included.Add(float64(removed))
	p.metrics.Size.Set(float64(len(p.entries)))
	return removed
}

// PruneRounds drops the transactions of every opround other than opround
// and returns how many it dropped.
func (p *Pool) PruneRounds(opround uint64) int {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	pruned := 0
	for h, e := range p.entries {
		if e.Opround != opround && p.drop(h) {
			pruned++
		}
	}
	p.metrics.Size.Set(float64(len(p.entries)))
	return pruned
}

// drop must be called with mtx held.
func (p *Pool) drop(h types.Hash) bool {
	e, ok := p.entries[h]
	if !ok {
		return false
	}
	delete(p.entries, h)
	p.byAccount[e.Account] = without(p.byAccount[e.Account], h)
	if len(p.byAccount[e.Account]) == 0 {
		delete(p.byAccount, e.Account)
	}
	return true
}

func without(hs []types.Hash, h types.Hash) []types.Hash {
	for i, x := range hs {
		if x == h {
			return append(hs[:i:i], hs[i+1:]...)
		}
	}
	return hs
}

// UpdateValidator records a validator's pending announcement if its nonce
// is newer than the one known, and reports whether it did.
func (p *Pool) UpdateValidator(rec types.PendingRecord) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if cur, ok := p.validators[rec.Validator]; ok && rec.Nonce <= cur.Nonce {
		return false
	}
	p.validators[rec.Validator] = rec
	p.metrics.Validators.Set(float64(len(p.validators)))
	return true
}

// Validators returns the known announcements ordered by validator address.
func (p *Pool) Validators() []types.PendingRecord {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	out := make([]types.PendingRecord, 0, len(p.validators))
	for _, rec := range p.validators {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Validator[:], out[j].Validator[:]) < 0
	})
	return out
}
