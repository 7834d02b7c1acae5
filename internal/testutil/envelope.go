package testutil

import (
	"encoding/binary"
	"testing"

	"github.com/DataDog/zstd"
)

// Envelope wraps data in a ZSTD envelope: "ZSTD", header length 16,
// uncompressed and compressed sizes, then the zstd frame.
func Envelope(tb testing.TB, data []byte) []byte {
	tb.Helper()

	compressed, err := zstd.CompressLevel(nil, data, zstd.BestSpeed)
	if err != nil {
		tb.Fatalf("zstd compress: %v", err)
	}

	out := make([]byte, 24, 24+len(compressed))
	copy(out[0:4], "ZSTD")
	binary.LittleEndian.PutUint32(out[4:8], 16)
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(data)))
	binary.LittleEndian.PutUint64(out[16:24], uint64(len(compressed)))
	return append(out, compressed...)
}
