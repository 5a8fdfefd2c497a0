package types

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/optract/optract/internal/codec"
)

// TxSchema is the layout of a vote, curation or claim transaction.
var TxSchema = codec.Schema{
	Name: "tx",
	Fields: []codec.Field{
		{Name: "opround", Length: 32, AllowVariableLength: true},
		{Name: "account", Length: 20, AllowZero: true},
		{Name: "comment", Length: 32, AllowVariableLength: true},
		{Name: "title", Length: 1024, AllowVariableLength: true, AllowZero: true},
		{Name: "url", Length: 1024, AllowVariableLength: true, AllowZero: true},
		{Name: "aid", Length: 32, AllowZero: true},
		{Name: "oid", Length: 32, AllowVariableLength: true},
		{Name: "v1block", Length: 32, AllowVariableLength: true},
		{Name: "v1leaf", Length: 32, AllowVariableLength: true},
		{Name: "v2block", Length: 32, AllowVariableLength: true},
		{Name: "v2leaf", Length: 32, AllowVariableLength: true},
		{Name: "since", Length: 32, AllowVariableLength: true},
		{Name: "v1proof", Length: 768, AllowVariableLength: true, AllowZero: true},
		{Name: "v1side", Length: 3, AllowVariableLength: true, AllowZero: true},
		{Name: "v2proof", Length: 768, AllowVariableLength: true, AllowZero: true},
		{Name: "v2side", Length: 3, AllowVariableLength: true, AllowZero: true},
		{Name: "txhash", Length: 32, AllowZero: true},
		{Name: "v", AllowZero: true, Default: []byte{0x1c}},
		{Name: "r", Length: 32, AllowZero: true},
		{Name: "s", Length: 32, AllowZero: true},
	},
}

// Tx is a decoded transaction record.
//
// A tx with V1Block set is a vote on an article already curated in that
// block; with V2Block set it is a claim on a winning vote. Neither set means
// a new curation of URL.
type Tx struct {
	Opround uint64
	Account Address
	Comment Hash
	Title   string
	URL     string
	AID     Hash
	OID     Hash
	V1Block uint64
	V1Leaf  Hash
	V2Block uint64
	V2Leaf  Hash
	Since   uint64
	V1Proof []byte
	V1Side  []byte
	V2Proof []byte
	V2Side  []byte
	TxHash  Hash
	V       []byte
	R       Hash
	S       Hash
}

// TxFromRecord converts a record decoded with TxSchema.
func TxFromRecord(rec codec.Record) Tx {
	return Tx{
		Opround: uintFromBytes(rec.Get("opround")),
		Account: common.BytesToAddress(rec.Get("account")),
		Comment: common.BytesToHash(rec.Get("comment")),
		Title:   string(rec.Get("title")),
		URL:     string(rec.Get("url")),
		AID:     common.BytesToHash(rec.Get("aid")),
		OID:     common.BytesToHash(rec.Get("oid")),
		V1Block: uintFromBytes(rec.Get("v1block")),
		V1Leaf:  common.BytesToHash(rec.Get("v1leaf")),
		V2Block: uintFromBytes(rec.Get("v2block")),
		V2Leaf:  common.BytesToHash(rec.Get("v2leaf")),
		Since:   uintFromBytes(rec.Get("since")),
		V1Proof: rec.Get("v1proof"),
		V1Side:  rec.Get("v1side"),
		V2Proof: rec.Get("v2proof"),
		V2Side:  rec.Get("v2side"),
		TxHash:  common.BytesToHash(rec.Get("txhash")),
		V:       rec.Get("v"),
		R:       common.BytesToHash(rec.Get("r")),
		S:       common.BytesToHash(rec.Get("s")),
	}
}

// Record converts tx back to its field map.
func (tx Tx) Record() codec.Record {
	rec := codec.Record{
		"opround": uintToBytes(tx.Opround),
		"account": tx.Account.Bytes(),
		"comment": hashBytes(tx.Comment),
		"title":   []byte(tx.Title),
		"url":     []byte(tx.URL),
		"aid":     tx.AID.Bytes(),
		"oid":     hashBytes(tx.OID),
		"v1block": uintToBytes(tx.V1Block),
		"v1leaf":  hashBytes(tx.V1Leaf),
		"v2block": uintToBytes(tx.V2Block),
		"v2leaf":  hashBytes(tx.V2Leaf),
		"since":   uintToBytes(tx.Since),
		"v1proof": tx.V1Proof,
		"v1side":  tx.V1Side,
		"v2proof": tx.V2Proof,
		"v2side":  tx.V2Side,
		"txhash":  tx.TxHash.Bytes(),
		"r":       tx.R.Bytes(),
		"s":       tx.S.Bytes(),
	}
	if len(tx.V) > 0 {
		rec["v"] = tx.V
	}
	return rec
}

// Encode returns the wire form of tx.
func (tx Tx) Encode() []byte {
	return codec.Encode(TxSchema, tx.Record())
}

// IsVote reports whether tx votes on an article curated in V1Block.
func (tx Tx) IsVote() bool { return tx.V1Block > 0 && tx.V2Block == 0 }

// IsClaim reports whether tx claims a reward for the vote in V1Block.
func (tx Tx) IsClaim() bool { return tx.V2Block > 0 }

// IsCuration reports whether tx proposes a new article.
func (tx Tx) IsCuration() bool { return tx.V1Block == 0 && tx.V2Block == 0 }

// DecodeTx decodes bz with TxSchema.
func DecodeTx(bz []byte) (Tx, error) {
	rec, err := codec.Decode(TxSchema, bz)
	if err != nil {
		return Tx{}, err
	}
	return TxFromRecord(rec), nil
}
