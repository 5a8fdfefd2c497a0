package codec

import (
	"bytes"
	"fmt"
	"strings"
)

// Field describes one position of a record.
//
// Length is the byte width of the field; zero means unbounded. A fixed field
// (AllowVariableLength false) must be exactly Length bytes on the wire, a
// variable field at most Length bytes. Values made only of zero bytes are
// rejected unless AllowZero is set. An empty value in a variable field is
// treated as absent.
type Field struct {
	Name                string
	Length              int
	AllowVariableLength bool
	AllowZero           bool
	Default             []byte
}

// Schema is an ordered list of fields with a name used in errors and metrics.
type Schema struct {
	Name   string
	Fields []Field
}

// Index returns the position of the named field or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) String() string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return fmt.Sprintf("%s[%s]", s.Name, strings.Join(names, ","))
}

// check validates v against f.
func (f Field) check(v []byte) error {
	if f.Length > 0 {
		switch {
		case f.AllowVariableLength && len(v) > f.Length:
			return fmt.Errorf("length %d exceeds %d", len(v), f.Length)
		case !f.AllowVariableLength && len(v) != f.Length:
			return fmt.Errorf("length %d, want %d", len(v), f.Length)
		}
	}
	if !f.AllowZero && len(v) > 0 && isZero(v) {
		return errZeroValue
	}
	if !f.AllowZero && len(v) == 0 && !f.AllowVariableLength {
		return errZeroValue
	}
	return nil
}

// shape pads or truncates v to the field width. Fixed fields keep their
// rightmost bytes, variable fields their leftmost.
func (f Field) shape(v []byte) []byte {
	if f.Length == 0 {
		return v
	}
	if f.AllowVariableLength {
		if len(v) > f.Length {
			return v[:f.Length]
		}
		return v
	}
	switch {
	case len(v) == f.Length:
		return v
	case len(v) > f.Length:
		return v[len(v)-f.Length:]
	default:
		out := make([]byte, f.Length)
		copy(out[f.Length-len(v):], v)
		return out
	}
}

func isZero(v []byte) bool {
	return len(bytes.Trim(v, "\x00")) == 0
}
