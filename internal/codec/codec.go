// Package codec encodes records as RLP lists of byte strings and decodes
// them back against a field schema.
//
// Decoding is also used to tell apart message kinds: Classify tries each
// schema in turn and the first one that accepts the bytes wins.
package codec

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Record maps field names to raw values.
type Record map[string][]byte

// Get returns the value of name, or nil.
func (r Record) Get(name string) []byte { return r[name] }

// Equal reports whether both records hold the same values.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		w, ok := o[k]
		if !ok || !bytes.Equal(v, w) {
			return false
		}
	}
	return true
}

// Encode serializes rec in schema order. Absent fields take their default.
func Encode(schema Schema, rec Record) []byte {
	raw := make([][]byte, len(schema.Fields))
	for i, f := range schema.Fields {
		v, ok := rec[f.Name]
		if !ok {
			v = f.Default
		}
		raw[i] = f.shape(v)
		if raw[i] == nil {
			raw[i] = []byte{}
		}
	}

	bz, err := rlp.EncodeToBytes(raw)
	if err != nil {
		// a list of byte strings always encodes
		panic(err)
	}
	return bz
}

// Decode parses bz against schema. It returns ErrMalformed if bz is not a
// flat RLP list, or an error satisfying IsMismatch if the list does not fit
// the schema.
func Decode(schema Schema, bz []byte) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	var raw [][]byte
	if err := rlp.DecodeBytes(bz, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) != len(schema.Fields) {
		return nil, fmt.Errorf("%w: %s has %d fields, got %d",
			ErrFieldCount, schema.Name, len(schema.Fields), len(raw))
	}

	rec = make(Record, len(raw))
	for i, f := range schema.Fields {
		if err := f.check(raw[i]); err != nil {
			return nil, &FieldError{Schema: schema.Name, Field: f.Name, Err: err}
		}
		rec[f.Name] = raw[i]
	}
	return rec, nil
}

// Classify decodes bz against each schema in order and returns the first
// that matches. Malformed input stops the search.
func Classify(bz []byte, schemas ...Schema) (Schema, Record, error) {
	for _, s := range schemas {
		rec, err := Decode(s, bz)
		switch {
		case err == nil:
			return s, rec, nil
		case IsMismatch(err):
			continue
		default:
			return Schema{}, nil, err
		}
	}
	return Schema{}, nil, ErrUnknownSchema
}
