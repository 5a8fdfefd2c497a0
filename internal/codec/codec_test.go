package codec_test

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/optract/optract/internal/codec"
	"github.com/optract/optract/types"
)

var testSchema = codec.Schema{
	Name: "test",
	Fields: []codec.Field{
		{Name: "id", Length: 32, AllowVariableLength: true},
		{Name: "owner", Length: 20, AllowZero: true},
		{Name: "digest", Length: 32},
		{Name: "note", Length: 16, AllowVariableLength: true, AllowZero: true},
		{Name: "v", AllowZero: true, Default: []byte{0x1c}},
	},
}

func drawValue(t *rapid.T, f codec.Field) []byte {
	var v []byte
	switch {
	case f.Length == 0:
		v = rapid.SliceOfN(rapid.Byte(), 0, 8).Draw(t, f.Name).([]byte)
	case f.AllowVariableLength:
		max := f.Length
		if max > 64 {
			max = 64
		}
		v = rapid.SliceOfN(rapid.Byte(), 0, max).Draw(t, f.Name).([]byte)
	default:
		v = rapid.SliceOfN(rapid.Byte(), f.Length, f.Length).Draw(t, f.Name).([]byte)
	}
	if !f.AllowZero && (len(v) > 0 || !f.AllowVariableLength) && bytes.Count(v, []byte{0}) == len(v) {
		if len(v) == 0 {
			v = []byte{1}
		} else {
			v[len(v)-1] = 1
		}
	}
	return v
}

func drawRecord(t *rapid.T, s codec.Schema) codec.Record {
	rec := make(codec.Record, len(s.Fields))
	for _, f := range s.Fields {
		rec[f.Name] = drawValue(t, f)
	}
	return rec
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []codec.Schema{testSchema, types.TxSchema, types.PendingSchema} {
		s := s
		t.Run(s.Name, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				rec := drawRecord(t, s)

				got, err := codec.Decode(s, codec.Encode(s, rec))
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if diff := cmp.Diff(rec, got, cmpopts.EquateEmpty()); diff != "" {
					t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
				}
			})
		})
	}
}

func TestEncodeShapesFields(t *testing.T) {
	bz := codec.Encode(testSchema, codec.Record{
		"id":     bytes.Repeat([]byte{0xaa}, 40),
		"owner":  []byte{0x01, 0x02},
		"digest": append([]byte{0xff, 0xff}, bytes.Repeat([]byte{0x07}, 32)...),
	})

	var raw [][]byte
	require.NoError(t, rlp.DecodeBytes(bz, &raw))
	require.Len(t, raw, len(testSchema.Fields))

	// variable fields keep their leading bytes
	require.Equal(t, bytes.Repeat([]byte{0xaa}, 32), raw[0])
	// fixed fields are left padded
	require.Equal(t, append(make([]byte, 18), 0x01, 0x02), raw[1])
	// and keep their trailing bytes when too long
	require.Equal(t, bytes.Repeat([]byte{0x07}, 32), raw[2])
	// absent fields use their default
	require.Empty(t, raw[3])
	require.Equal(t, []byte{0x1c}, raw[4])
}

func TestDecodeZeroValue(t *testing.T) {
	zero := make([]byte, 32)
	schema := func(allowZero bool) codec.Schema {
		return codec.Schema{Name: "z", Fields: []codec.Field{
			{Name: "value", Length: 32, AllowZero: allowZero},
		}}
	}
	bz, err := rlp.EncodeToBytes([][]byte{zero})
	require.NoError(t, err)

	_, err = codec.Decode(schema(false), bz)
	require.Error(t, err)
	require.True(t, codec.IsMismatch(err))
	require.True(t, codec.IsZeroValue(err))

	rec, err := codec.Decode(schema(true), bz)
	require.NoError(t, err)
	require.Equal(t, zero, rec.Get("value"))
}

func TestDecodeErrors(t *testing.T) {
	valid := codec.Encode(testSchema, codec.Record{
		"id":     []byte{1},
		"digest": bytes.Repeat([]byte{2}, 32),
	})

	nested, err := rlp.EncodeToBytes([]interface{}{[]byte{1}, [][]byte{{2}}})
	require.NoError(t, err)
	short, err := rlp.EncodeToBytes([][]byte{{1}, {2}})
	require.NoError(t, err)
	badLen, err := rlp.EncodeToBytes([][]byte{{1}, make([]byte, 20), {3}, {}, {0x1c}})
	require.NoError(t, err)

	testCases := map[string]struct {
		input     []byte
		malformed bool
	}{
		"empty input":    {nil, true},
		"garbage":        {[]byte("not rlp at all"), true},
		"not a list":     {[]byte{0x83, 'a', 'b', 'c'}, true},
		"nested list":    {nested, true},
		"trailing bytes": {append(append([]byte{}, valid...), 0x00), true},
		"truncated":      {valid[:len(valid)-1], true},
		"field count":    {short, false},
		"fixed length":   {badLen, false},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			require.NotPanics(t, func() {
				_, err := codec.Decode(testSchema, tc.input)
				require.Error(t, err)
				require.Equal(t, tc.malformed, !codec.IsMismatch(err), err.Error())
				if tc.malformed {
					require.ErrorIs(t, err, codec.ErrMalformed)
				}
			})
		})
	}
}

func TestClassify(t *testing.T) {
	tx := codec.Encode(types.TxSchema, validTxRecord())
	pending := codec.Encode(types.PendingSchema, validPendingRecord())

	s, rec, err := codec.Classify(tx, types.TxSchema, types.PendingSchema)
	require.NoError(t, err)
	require.Equal(t, types.TxSchema.Name, s.Name)
	require.Equal(t, []byte("https://example.org/a"), rec.Get("url"))

	s, _, err = codec.Classify(pending, types.TxSchema, types.PendingSchema)
	require.NoError(t, err)
	require.Equal(t, types.PendingSchema.Name, s.Name)

	other, err := rlp.EncodeToBytes([][]byte{{1}, {2}, {3}})
	require.NoError(t, err)
	_, _, err = codec.Classify(other, types.TxSchema, types.PendingSchema)
	require.ErrorIs(t, err, codec.ErrUnknownSchema)

	_, _, err = codec.Classify([]byte{0xff}, types.TxSchema, types.PendingSchema)
	require.ErrorIs(t, err, codec.ErrMalformed)
}

func validTxRecord() codec.Record {
	return codec.Record{
		"opround": {0x03},
		"account": bytes.Repeat([]byte{0x11}, 20),
		"comment": bytes.Repeat([]byte{0x22}, 32),
		"title":   []byte("title"),
		"url":     []byte("https://example.org/a"),
		"aid":     bytes.Repeat([]byte{0x33}, 32),
		"oid":     bytes.Repeat([]byte{0x44}, 32),
		"v1block": {0x09},
		"v1leaf":  bytes.Repeat([]byte{0x55}, 32),
		"since":   {0x5f, 0x00, 0x00, 0x01},
		"txhash":  bytes.Repeat([]byte{0x66}, 32),
		"r":       bytes.Repeat([]byte{0x77}, 32),
		"s":       bytes.Repeat([]byte{0x88}, 32),
	}
}

func validPendingRecord() codec.Record {
	return codec.Record{
		"nonce":     {0x01},
		"pending":   {0x05},
		"validator": bytes.Repeat([]byte{0x12}, 20),
		"cache":     bytes.Repeat([]byte{0x34}, 32),
		"since":     {0x5f, 0x00, 0x00, 0x02},
		"r":         bytes.Repeat([]byte{0x56}, 32),
		"s":         bytes.Repeat([]byte{0x78}, 32),
	}
}
