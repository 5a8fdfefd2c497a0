package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when the bytes are not a flat list of byte
	// strings. No schema can match such input.
	ErrMalformed = errors.New("malformed record")

	// ErrFieldCount is returned when the number of list items differs from
	// the number of schema fields.
	ErrFieldCount = errors.New("field count mismatch")

	// ErrUnknownSchema is returned by Classify when no schema matches.
	ErrUnknownSchema = errors.New("no matching schema")

	errZeroValue = errors.New("zero value not allowed")
)

// FieldError reports a field that violates its descriptor.
type FieldError struct {
	Schema string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Schema, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// IsZeroValue reports whether err was caused by an all-zero value in a field
// that does not allow one.
func IsZeroValue(err error) bool {
	return errors.Is(err, errZeroValue)
}

// IsMismatch reports whether err means "well formed, but not this schema".
func IsMismatch(err error) bool {
	var fe *FieldError
	return errors.Is(err, ErrFieldCount) || errors.As(err, &fe)
}
