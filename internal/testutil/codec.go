// Package testutil builds synthetic bundles, serialized files and type trees
// for tests. Nothing here is used outside _test.go files.
package testutil

import (
	"bytes"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"

	"github.com/EchoTools/hhhFileTools/pkg/codec"
)

// Compress encodes data with the given codec in the block layout the
// decompressor expects.
func Compress(tb testing.TB, c codec.Codec, data []byte) []byte {
	tb.Helper()

	switch c {
	case codec.None:
		return bytes.Clone(data)

	case codec.LZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			tb.Fatalf("lz4 compress: %v", err)
		}
		if n == 0 {
			tb.Fatalf("lz4 compress: input of %d bytes is incompressible", len(data))
		}
		return dst[:n]

	case codec.LZ4HC:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlockHC(data, dst, lz4.Level9, nil, nil)
		if err != nil {
			tb.Fatalf("lz4hc compress: %v", err)
		}
		if n == 0 {
			tb.Fatalf("lz4hc compress: input of %d bytes is incompressible", len(data))
		}
		return dst[:n]

	case codec.LZMA:
		var buf bytes.Buffer
		w, err := lzma.WriterConfig{SizeInHeader: true, Size: int64(len(data))}.NewWriter(&buf)
		if err != nil {
			tb.Fatalf("lzma writer: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			tb.Fatalf("lzma write: %v", err)
		}
		if err := w.Close(); err != nil {
			tb.Fatalf("lzma close: %v", err)
		}
		// Drop the 8-byte size field of the classic header: blocks carry
		// only the 5 property bytes.
		out := buf.Bytes()
		return append(bytes.Clone(out[:5]), out[13:]...)

	default:
		tb.Fatalf("no compressor for %s", c)
		return nil
	}
}

// Pattern returns n bytes of compressible data.
func Pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((i / 7) % 31)
	}
	return data
}
