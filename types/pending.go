package types

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/optract/optract/internal/codec"
)

// PendingSchema is the layout of a validator's pending pool announcement.
var PendingSchema = codec.Schema{
	Name: "pending",
	Fields: []codec.Field{
		{Name: "nonce", Length: 32, AllowVariableLength: true},
		{Name: "pending", Length: 32, AllowVariableLength: true},
		{Name: "validator", Length: 20, AllowZero: true},
		{Name: "cache", Length: 32, AllowVariableLength: true},
		{Name: "since", Length: 32, AllowVariableLength: true},
		{Name: "v", AllowZero: true, Default: []byte{0x1c}},
		{Name: "r", Length: 32, AllowZero: true},
		{Name: "s", Length: 32, AllowZero: true},
	},
}

// PendingRecord announces that Validator holds Pending transactions, packed
// into the snapshot behind Cache.
type PendingRecord struct {
	Nonce     uint64
	Pending   uint64
	Validator Address
	Cache     Hash
	Since     uint64
	V         []byte
	R         Hash
	S         Hash
}

// PendingFromRecord converts a record decoded with PendingSchema.
func PendingFromRecord(rec codec.Record) PendingRecord {
	return PendingRecord{
		Nonce:     uintFromBytes(rec.Get("nonce")),
		Pending:   uintFromBytes(rec.Get("pending")),
		Validator: common.BytesToAddress(rec.Get("validator")),
		Cache:     common.BytesToHash(rec.Get("cache")),
		Since:     uintFromBytes(rec.Get("since")),
		V:         rec.Get("v"),
		R:         common.BytesToHash(rec.Get("r")),
		S:         common.BytesToHash(rec.Get("s")),
	}
}

// Record converts p back to its field map.
func (p PendingRecord) Record() codec.Record {
	rec := codec.Record{
		"nonce":     uintToBytes(p.Nonce),
		"pending":   uintToBytes(p.Pending),
		"validator": p.Validator.Bytes(),
		"cache":     hashBytes(p.Cache),
		"since":     uintToBytes(p.Since),
		"r":         p.R.Bytes(),
		"s":         p.S.Bytes(),
	}
	if len(p.V) > 0 {
		rec["v"] = p.V
	}
	return rec
}

// Encode returns the wire form of p.
func (p PendingRecord) Encode() []byte {
	return codec.Encode(PendingSchema, p.Record())
}
