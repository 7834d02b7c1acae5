package codec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/hhhFileTools/internal/testutil"
	"github.com/EchoTools/hhhFileTools/pkg/codec"
)

func TestDecompressRoundTrip(t *testing.T) {
	original := testutil.Pattern(64 * 1024)

	for _, c := range []codec.Codec{codec.None, codec.LZ4, codec.LZ4HC, codec.LZMA} {
		t.Run(c.String(), func(t *testing.T) {
			compressed := testutil.Compress(t, c, original)

			decoded, err := codec.Decompress(c, compressed, len(original))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(decoded, original), "round trip mismatch")
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	original := testutil.Pattern(4096)

	for _, c := range []codec.Codec{codec.None, codec.LZ4, codec.LZMA} {
		t.Run(c.String(), func(t *testing.T) {
			compressed := testutil.Compress(t, c, original)

			_, err := codec.Decompress(c, compressed, len(original)+16)
			assert.ErrorIs(t, err, codec.ErrCorruptBlock)
		})
	}
}

func TestCheckSize(t *testing.T) {
	tests := []struct {
		name    string
		codec   codec.Codec
		n, size int64
		ok      bool
	}{
		{"stored exact", codec.None, 100, 100, true},
		{"stored mismatch", codec.None, 100, 101, false},
		{"lz4 plausible", codec.LZ4, 10, 2000, true},
		{"lz4 bomb", codec.LZ4HC, 10, 4 << 30, false},
		{"lzma unbounded", codec.LZMA, 10, 1 << 30, true},
		{"negative", codec.LZMA, 10, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := codec.CheckSize(tt.codec, tt.n, tt.size)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, codec.ErrCorruptBlock)
			}
		})
	}
}

func TestDecompressImplausibleSize(t *testing.T) {
	t.Run("lz4", func(t *testing.T) {
		_, err := codec.Decompress(codec.LZ4, make([]byte, 10), 4<<30)
		assert.ErrorIs(t, err, codec.ErrCorruptBlock)
	})

	t.Run("lzma", func(t *testing.T) {
		// The output buffer only grows as bytes decode, so a huge declared
		// size on a tiny stream fails instead of allocating it up front.
		compressed := testutil.Compress(t, codec.LZMA, testutil.Pattern(64))
		_, err := codec.Decompress(codec.LZMA, compressed, 1<<40)
		assert.ErrorIs(t, err, codec.ErrCorruptBlock)
	})
}

func TestDecompressUnsupported(t *testing.T) {
	tests := []codec.Codec{codec.LZHAM, codec.Codec(9)}
	for _, c := range tests {
		_, err := codec.Decompress(c, []byte{1, 2, 3}, 3)
		assert.ErrorIs(t, err, codec.ErrUnsupportedCodec, "codec %s", c)
	}
}

func TestDecompressDeterministic(t *testing.T) {
	original := testutil.Pattern(8192)
	compressed := testutil.Compress(t, codec.LZ4, original)

	a, err := codec.Decompress(codec.LZ4, compressed, len(original))
	require.NoError(t, err)
	b, err := codec.Decompress(codec.LZ4, compressed, len(original))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFromFlags(t *testing.T) {
	assert.Equal(t, codec.LZ4HC, codec.FromFlags(0x43))
	assert.Equal(t, codec.LZMA, codec.FromFlags(0x81))
	assert.Equal(t, codec.None, codec.FromFlags(0x40))
}

func TestCodecString(t *testing.T) {
	assert.Equal(t, "lz4hc", codec.LZ4HC.String())
	assert.Equal(t, "codec(12)", codec.Codec(12).String())
}
