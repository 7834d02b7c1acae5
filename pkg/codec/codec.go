// Package codec decompresses the storage blocks of a bundle.
//
// Decompress is a pure function of its inputs and keeps no state between
// calls, so independent blocks can be decompressed concurrently.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"

	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// Errors re-exported from stream.
var (
	// ErrUnsupportedCodec is returned for codecs that are recognised but not implemented.
	ErrUnsupportedCodec = stream.ErrUnsupportedCodec

	// ErrCorruptBlock is returned when output length differs from the declared size.
	ErrCorruptBlock = stream.ErrCorruptBlock
)

// Codec is the compression tag stored in the low bits of block and header flags.
type Codec uint8

const (
	None  Codec = 0
	LZMA  Codec = 1
	LZ4   Codec = 2
	LZ4HC Codec = 3
	LZHAM Codec = 4
)

// Mask selects the codec bits of a flags word.
const Mask = 0x3f

// FromFlags extracts the codec from a block or header flags word.
func FromFlags(flags uint32) Codec {
	return Codec(flags & Mask)
}

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZMA:
		return "lzma"
	case LZ4:
		return "lz4"
	case LZ4HC:
		return "lz4hc"
	case LZHAM:
		return "lzham"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// lzmaPropsSize is the size of the properties prefix on an LZMA block.
const lzmaPropsSize = 5

// An LZ4 sequence grows by at most 255 output bytes per input byte, plus a
// fixed amount for the first token and trailing literals.
const (
	lz4MaxRatio = 255
	lz4Slack    = 64
)

// CheckSize rejects a declared uncompressed size that codec c cannot produce
// from n compressed bytes. LZMA has no useful expansion bound and is only
// checked for sign.
func CheckSize(c Codec, n, size int64) error {
	switch {
	case size < 0:
		return fmt.Errorf("%w: negative uncompressed size %d", ErrCorruptBlock, size)
	case c == None && size != n:
		return fmt.Errorf("%w: stored block is %d bytes, want %d", ErrCorruptBlock, n, size)
	case (c == LZ4 || c == LZ4HC) && size > n*lz4MaxRatio+lz4Slack:
		return fmt.Errorf("%w: %d lz4 bytes cannot expand to %d", ErrCorruptBlock, n, size)
	}
	return nil
}

// Decompress decodes src with codec c and returns exactly size bytes. The
// declared size is checked against the codec's expansion bound before any
// buffer is allocated, and LZMA output grows only as it is decoded.
func Decompress(c Codec, src []byte, size int) ([]byte, error) {
	if err := CheckSize(c, int64(len(src)), int64(size)); err != nil {
		return nil, err
	}
	if c == LZMA {
		return readLZMA(src, size)
	}
	dst := make([]byte, size)
	if err := DecompressInto(c, dst, src); err != nil {
		return nil, err
	}
	return dst, nil
}

// DecompressInto decodes src into dst, which must have exactly the
// uncompressed length.
func DecompressInto(c Codec, dst, src []byte) error {
	switch c {
	case None:
		if len(src) != len(dst) {
			return fmt.Errorf("%w: stored block is %d bytes, want %d", ErrCorruptBlock, len(src), len(dst))
		}
		copy(dst, src)
		return nil

	case LZ4, LZ4HC:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return fmt.Errorf("%w: lz4: %v", ErrCorruptBlock, err)
		}
		if n != len(dst) {
			return fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrCorruptBlock, n, len(dst))
		}
		return nil

	case LZMA:
		zr, err := lzmaReader(src, len(dst))
		if err != nil {
			return err
		}
		n, err := io.ReadFull(zr, dst)
		if err != nil {
			return fmt.Errorf("%w: lzma produced %d bytes, want %d: %v", ErrCorruptBlock, n, len(dst), err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, c)
	}
}

// lzmaReader decodes a block made of the 5-byte LZMA properties followed by
// the raw stream. The classic header is rebuilt with the known size so the
// decoder stops exactly at the end of the block.
func lzmaReader(src []byte, size int) (io.Reader, error) {
	if len(src) < lzmaPropsSize {
		return nil, fmt.Errorf("%w: lzma block shorter than properties", ErrCorruptBlock)
	}

	header := make([]byte, lzmaPropsSize+8)
	copy(header, src[:lzmaPropsSize])
	binary.LittleEndian.PutUint64(header[lzmaPropsSize:], uint64(size))

	zr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), bytes.NewReader(src[lzmaPropsSize:])))
	if err != nil {
		return nil, fmt.Errorf("%w: lzma header: %v", ErrCorruptBlock, err)
	}
	return zr, nil
}

func readLZMA(src []byte, size int) ([]byte, error) {
	zr, err := lzmaReader(src, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, zr, int64(size))
	if err != nil {
		return nil, fmt.Errorf("%w: lzma produced %d bytes, want %d: %v", ErrCorruptBlock, n, size, err)
	}
	return buf.Bytes(), nil
}
