// Package stream provides an endian-aware cursor over an in-memory byte buffer.
//
// Every structure in a bundle is read through a Reader: container headers are
// big-endian, serialized-file metadata may be either orientation, and object
// payloads inherit the orientation of the file that holds them.
package stream

import (
	"encoding/binary"
	"math"
)

// Reader is a sequential, seekable cursor over a byte slice.
// Slices returned by Bytes alias the underlying buffer.
type Reader struct {
	buf    []byte
	pos    int64
	origin int64
	order  binary.ByteOrder
}

// NewReader creates a reader over buf using the given byte order.
func NewReader(buf []byte, order binary.ByteOrder) *Reader {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Reader{buf: buf, order: order}
}

// Order returns the current byte order.
func (r *Reader) Order() binary.ByteOrder { return r.order }

// SetOrder switches the byte order for all following reads.
func (r *Reader) SetOrder(order binary.ByteOrder) { r.order = order }

// Pos returns the absolute cursor position.
func (r *Reader) Pos() int64 { return r.pos }

// Len returns the total buffer length.
func (r *Reader) Len() int64 { return int64(len(r.buf)) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int64 { return int64(len(r.buf)) - r.pos }

// Buffer returns the underlying buffer.
func (r *Reader) Buffer() []byte { return r.buf }

// SetOrigin sets the position Align measures from.
func (r *Reader) SetOrigin(origin int64) { r.origin = origin }

// Seek moves the cursor to an absolute position.
func (r *Reader) Seek(pos int64) error {
	if pos < 0 || pos > int64(len(r.buf)) {
		return Truncated(pos, 0, 0)
	}
	r.pos = pos
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int64) error {
	return r.Seek(r.pos + n)
}

// Align advances the cursor to the next multiple of n relative to the origin.
func (r *Reader) Align(n int64) error {
	if n <= 1 {
		return nil
	}
	if m := (r.pos - r.origin) % n; m != 0 {
		return r.Skip(n - m)
	}
	return nil
}

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || int64(n) > r.Remaining() {
		return nil, Truncated(r.pos, n, int(max(r.Remaining(), 0)))
	}
	out := r.buf[r.pos : r.pos+int64(n)]
	r.pos += int64(n)
	return out, nil
}

// U8 reads an unsigned byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// I8 reads a signed byte.
func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

// Bool reads a single byte as a boolean.
func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	return v != 0, err
}

// U16 reads an unsigned 16-bit integer.
func (r *Reader) U16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

// I16 reads a signed 16-bit integer.
func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

// U32 reads an unsigned 32-bit integer.
func (r *Reader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// I32 reads a signed 32-bit integer.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// U64 reads an unsigned 64-bit integer.
func (r *Reader) U64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// I64 reads a signed 64-bit integer.
func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// F32 reads an IEEE 754 single.
func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

// F64 reads an IEEE 754 double.
func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	return math.Float64frombits(v), err
}

// StringToNull reads bytes up to and including a NUL terminator.
func (r *Reader) StringToNull() (string, error) {
	start := r.pos
	for i := r.pos; i < int64(len(r.buf)); i++ {
		if r.buf[i] == 0 {
			r.pos = i + 1
			return string(r.buf[start:i]), nil
		}
	}
	return "", Truncated(start, int(r.Remaining())+1, int(r.Remaining()))
}

// AlignedString reads a 32-bit length-prefixed string followed by 4-byte alignment.
func (r *Reader) AlignedString() (string, error) {
	n, err := r.I32()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	if err := r.Align(4); err != nil {
		return "", err
	}
	return string(b), nil
}
