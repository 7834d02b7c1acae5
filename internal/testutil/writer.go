package testutil

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer appends fixed-width values in a chosen byte order.
type Writer struct {
	bytes.Buffer
	Order binary.ByteOrder
}

// NewWriter returns a writer using order.
func NewWriter(order binary.ByteOrder) *Writer {
	return &Writer{Order: order}
}

func (w *Writer) U8(v uint8) *Writer { w.WriteByte(v); return w }

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

func (w *Writer) U16(v uint16) *Writer {
	b, _ := binary.Append(nil, w.Order, v)
	w.Write(b)
	return w
}

func (w *Writer) I16(v int16) *Writer { return w.U16(uint16(v)) }

func (w *Writer) U32(v uint32) *Writer {
	b, _ := binary.Append(nil, w.Order, v)
	w.Write(b)
	return w
}

func (w *Writer) I32(v int32) *Writer { return w.U32(uint32(v)) }

func (w *Writer) U64(v uint64) *Writer {
	b, _ := binary.Append(nil, w.Order, v)
	w.Write(b)
	return w
}

func (w *Writer) I64(v int64) *Writer { return w.U64(uint64(v)) }

func (w *Writer) F32(v float32) *Writer { return w.U32(math.Float32bits(v)) }

// CString writes s followed by a NUL byte.
func (w *Writer) CString(s string) *Writer {
	w.WriteString(s)
	return w.U8(0)
}

// Raw writes b verbatim.
func (w *Writer) Raw(b []byte) *Writer {
	w.Write(b)
	return w
}

// AlignedString writes a length-prefixed string followed by 4-byte alignment.
func (w *Writer) AlignedString(s string) *Writer {
	w.I32(int32(len(s)))
	w.WriteString(s)
	return w.Align(4)
}

// Blob writes a length-prefixed byte array followed by 4-byte alignment.
func (w *Writer) Blob(b []byte) *Writer {
	w.I32(int32(len(b)))
	w.Write(b)
	return w.Align(4)
}

// Align pads with zeros to a multiple of n.
func (w *Writer) Align(n int) *Writer {
	for w.Len()%n != 0 {
		w.WriteByte(0)
	}
	return w
}
