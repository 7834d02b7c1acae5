package stream

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories shared by every decoding stage.
var (
	// ErrTruncatedInput is returned when a read runs past the declared bounds.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrUnsupportedCodec is returned for a known but unimplemented compression codec.
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrUnsupportedMeshEncoding is returned for an unrecognized vertex channel format.
	ErrUnsupportedMeshEncoding = errors.New("unsupported mesh encoding")

	// ErrUnsupportedTextureFormat is returned for an unrecognized pixel format tag.
	ErrUnsupportedTextureFormat = errors.New("unsupported texture format")

	// ErrCorruptBlock is returned when a block does not decompress to its declared size.
	ErrCorruptBlock = errors.New("corrupt block")

	// ErrMalformedHeader is returned when a container or serialized-file header
	// fails structural checks.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrSchemaMismatch is returned when a type tree walk does not consume
	// exactly the object's declared byte range.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrUnknownSchema is returned when an object's class has no type tree.
	ErrUnknownSchema = errors.New("unknown schema")
)

// Error carries the location of a failure so it can be reproduced.
type Error struct {
	Op     string // operation, e.g. "decode object"
	Entry  string // logical entry name, if known
	PathID int64  // object identifier, if known
	Offset int64  // byte offset within the entry, -1 if unknown
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Entry != "" {
		fmt.Fprintf(&b, " entry=%s", e.Entry)
	}
	if e.PathID != 0 {
		fmt.Fprintf(&b, " path_id=%d", e.PathID)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " offset=%d", e.Offset)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Truncated builds an ErrTruncatedInput error for a read of n bytes at off.
func Truncated(off int64, n, have int) error {
	return &Error{
		Op:     "read",
		Offset: off,
		Err:    fmt.Errorf("%w: need %d bytes, %d remaining", ErrTruncatedInput, n, have),
	}
}
