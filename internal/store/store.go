package store

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/orderedcode"
	"github.com/google/uuid"
	dbm "github.com/tendermint/tm-db"

	"github.com/optract/optract/types"
)

// ErrNotFound is returned when a requested block was never stored.
var ErrNotFound = errors.New("not found")

// encMode keeps sub-second precision on timestamps.
var encMode = mustEncMode(cbor.EncOptions{Time: cbor.TimeRFC3339Nano})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

/*
Store is the node's durable state. It holds:
 - the instance id, created on first open and kept afterwards
 - the last block whose data was synced
 - the leaves of every synced block, under the block number
 - the last status snapshot written by the node

The leaves of a block are stored in the order the snapshot lists them, so
the merkle tree rebuilt from them matches the on-chain root.
*/
type Store struct {
	db       dbm.DB
	instance string
}

// BlockRecord is the synced data of one block.
type BlockRecord struct {
	BlockNo    uint64       `cbor:"1,keyasint"`
	EthBlockNo uint64       `cbor:"2,keyasint"`
	MerkleRoot types.Hash   `cbor:"3,keyasint"`
	Leaves     []types.Hash `cbor:"4,keyasint"`
	Snapshot   types.Hash   `cbor:"5,keyasint"`
	SyncedAt   time.Time    `cbor:"6,keyasint"`
}

// Status is the last reported view of the node, as printed by the status
// command.
type Status struct {
	Instance         string     `cbor:"1,keyasint" json:"instance"`
	LastTick         time.Time  `cbor:"2,keyasint" json:"last_tick"`
	Epoch            uint64     `cbor:"3,keyasint" json:"epoch"`
	Opround          int64      `cbor:"4,keyasint" json:"opround"`
	OID              types.Hash `cbor:"5,keyasint" json:"oid"`
	OpStart          uint64     `cbor:"6,keyasint" json:"op_start"`
	LastSynced       uint64     `cbor:"7,keyasint" json:"last_synced"`
	Drawn            bool       `cbor:"8,keyasint" json:"drawn"`
	Lottery          uint64     `cbor:"9,keyasint" json:"lottery"`
	WinNumber        types.Hash `cbor:"10,keyasint" json:"win_number"`
	MinSuccessRate   uint64     `cbor:"11,keyasint" json:"min_success_rate"`
	SuccessRateTable string     `cbor:"12,keyasint" json:"success_rate_table"`
	FinalistList     string     `cbor:"13,keyasint" json:"finalist_list"`
	Endpoint         string     `cbor:"14,keyasint" json:"endpoint"`
	Topics           []string   `cbor:"15,keyasint" json:"topics"`
	Synchronized     bool       `cbor:"16,keyasint" json:"synchronized"`
	PendingTxs       int        `cbor:"17,keyasint" json:"pending_txs"`
	Missing          []uint64   `cbor:"18,keyasint" json:"missing"`
	PendingRoot      types.Hash `cbor:"19,keyasint" json:"pending_root"`
	Validators       int        `cbor:"20,keyasint" json:"validators"`
	RoundVotes       uint64     `cbor:"21,keyasint" json:"round_votes"`
	RoundClaims      uint64     `cbor:"22,keyasint" json:"round_claims"`
}

// NewStore opens a Store on db, creating the instance id if db is new.
func NewStore(db dbm.DB) (*Store, error) {
	s := &Store{db: db}

	bz, err := db.Get(metaKey(metaInstance))
	if err != nil {
		return nil, err
	}
	if len(bz) > 0 {
		s.instance = string(bz)
		return s, nil
	}

	s.instance = uuid.NewString()
	if err := db.SetSync(metaKey(metaInstance), []byte(s.instance)); err != nil {
		return nil, fmt.Errorf("writing instance id: %w", err)
	}
	return s, nil
}

// InstanceID returns the id created when the store was first opened.
func (s *Store) InstanceID() string { return s.instance }

// LastSynced returns the highest block whose data is stored, or 0.
func (s *Store) LastSynced() (uint64, error) {
	bz, err := s.db.Get(metaKey(metaLastSynced))
	if err != nil {
		return 0, err
	}
	if len(bz) == 0 {
		return 0, nil
	}
	var n uint64
	if err := cbor.Unmarshal(bz, &n); err != nil {
		return 0, fmt.Errorf("decoding last synced block: %w", err)
	}
	return n, nil
}

// SaveBlock stores rec and raises the last synced marker if rec is newer.
func (s *Store) SaveBlock(rec BlockRecord) error {
	last, err := s.LastSynced()
	if err != nil {
		return err
	}

	bz, err := encMode.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding block %d: %w", rec.BlockNo, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(blockKey(rec.BlockNo), bz); err != nil {
		return err
	}
	if rec.BlockNo > last {
		mark, err := encMode.Marshal(rec.BlockNo)
		if err != nil {
			return err
		}
		if err := batch.Set(metaKey(metaLastSynced), mark); err != nil {
			return err
		}
	}
	return batch.WriteSync()
}

// LoadBlock returns the stored data of blockNo, or ErrNotFound.
func (s *Store) LoadBlock(blockNo uint64) (*BlockRecord, error) {
	bz, err := s.db.Get(blockKey(blockNo))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, fmt.Errorf("block %d: %w", blockNo, ErrNotFound)
	}
	rec := new(BlockRecord)
	if err := cbor.Unmarshal(bz, rec); err != nil {
		return nil, fmt.Errorf("decoding block %d: %w", blockNo, err)
	}
	return rec, nil
}

// HasBlock reports whether the data of blockNo is stored.
func (s *Store) HasBlock(blockNo uint64) (bool, error) {
	return s.db.Has(blockKey(blockNo))
}

// Base returns the lowest stored block number, or 0 for an empty store.
func (s *Store) Base() (uint64, error) {
	iter, err := s.db.Iterator(blockKey(0), blockKey(math.MaxUint64))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if iter.Valid() {
		return decodeBlockKey(iter.Key())
	}
	return 0, iter.Error()
}

// PruneBlocks deletes every stored block below retainFrom and returns how
// many were deleted. The last synced marker is left alone.
func (s *Store) PruneBlocks(retainFrom uint64) (uint64, error) {
	iter, err := s.db.Iterator(blockKey(0), blockKey(retainFrom))
	if err != nil {
		return 0, err
	}
	var keys [][]byte
	for ; iter.Valid(); iter.Next() {
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, err
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	var pruned uint64
	for len(keys) > 0 {
		n := len(keys)
		if n > pruneBatchSize {
			n = pruneBatchSize
		}
		batch := s.db.NewBatch()
		for _, key := range keys[:n] {
			if err := batch.Delete(key); err != nil {
				batch.Close()
				return pruned, err
			}
		}
		if err := batch.WriteSync(); err != nil {
			batch.Close()
			return pruned, err
		}
		if err := batch.Close(); err != nil {
			return pruned, err
		}
		pruned += uint64(n)
		keys = keys[n:]
	}
	return pruned, nil
}

// SaveStatus replaces the stored status snapshot.
func (s *Store) SaveStatus(st Status) error {
	bz, err := encMode.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	return s.db.SetSync(metaKey(metaStatus), bz)
}

// LoadStatus returns the stored status snapshot, or ErrNotFound if the node
// never wrote one.
func (s *Store) LoadStatus() (Status, error) {
	var st Status
	bz, err := s.db.Get(metaKey(metaStatus))
	if err != nil {
		return st, err
	}
	if len(bz) == 0 {
		return st, fmt.Errorf("status: %w", ErrNotFound)
	}
	if err := cbor.Unmarshal(bz, &st); err != nil {
		return st, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

//---------------------------------- KEY ENCODING -----------------------------------------

const (
	prefixMeta  = int64(0)
	prefixBlock = int64(1)

	metaInstance   = "instance"
	metaLastSynced = "last_synced"
	metaStatus     = "status"

	pruneBatchSize = 1000
)

func metaKey(name string) []byte {
	key, err := orderedcode.Append(nil, prefixMeta, name)
	if err != nil {
		panic(err)
	}
	return key
}

func blockKey(blockNo uint64) []byte {
	key, err := orderedcode.Append(nil, prefixBlock, blockNo)
	if err != nil {
		panic(err)
	}
	return key
}

func decodeBlockKey(key []byte) (blockNo uint64, err error) {
	var prefix int64
	remaining, err := orderedcode.Parse(string(key), &prefix, &blockNo)
	if err != nil {
		return 0, err
	}
	if len(remaining) != 0 {
		return 0, fmt.Errorf("expected complete key but got remainder: %s", remaining)
	}
	if prefix != prefixBlock {
		return 0, fmt.Errorf("incorrect prefix. Expected %v, got %v", prefixBlock, prefix)
	}
	return blockNo, nil
}
