package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/DataDog/zstd"

	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// EnvelopeMagic identifies a ZSTD envelope around a container.
var EnvelopeMagic = [4]byte{0x5a, 0x53, 0x54, 0x44} // "ZSTD"

// EnvelopeHeaderSize is the fixed binary size of an envelope header.
const EnvelopeHeaderSize = 24 // 4 + 4 + 8 + 8 bytes

// EnvelopeHeader is the little-endian preamble of a ZSTD envelope.
type EnvelopeHeader struct {
	Magic            [4]byte
	HeaderLength     uint32
	Length           uint64 // Uncompressed size
	CompressedLength uint64 // Compressed size
}

// Validate checks the header for validity.
func (h *EnvelopeHeader) Validate() error {
	if h.Magic != EnvelopeMagic {
		return fmt.Errorf("%w: invalid envelope magic %x", stream.ErrMalformedHeader, h.Magic)
	}
	if h.HeaderLength != 16 {
		return fmt.Errorf("%w: invalid envelope header length: expected 16, got %d", stream.ErrMalformedHeader, h.HeaderLength)
	}
	if h.Length == 0 {
		return fmt.Errorf("%w: envelope uncompressed size is zero", stream.ErrMalformedHeader)
	}
	if h.CompressedLength == 0 {
		return fmt.Errorf("%w: envelope compressed size is zero", stream.ErrMalformedHeader)
	}
	return nil
}

// DecodeFrom reads the header from the given buffer.
// Does not validate.
func (h *EnvelopeHeader) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.HeaderLength = binary.LittleEndian.Uint32(data[4:8])
	h.Length = binary.LittleEndian.Uint64(data[8:16])
	h.CompressedLength = binary.LittleEndian.Uint64(data[16:24])
}

// hasEnvelope reports whether data starts with the envelope magic.
func hasEnvelope(data []byte) bool {
	return len(data) >= EnvelopeHeaderSize && bytes.Equal(data[:4], EnvelopeMagic[:])
}

// unwrapEnvelope strips a ZSTD envelope. Data without one is returned as is.
// Envelopes declaring more than maxSize bytes are rejected before the output
// buffer is allocated.
func unwrapEnvelope(data []byte, maxSize int64) ([]byte, bool, error) {
	if !hasEnvelope(data) {
		return data, false, nil
	}

	var h EnvelopeHeader
	h.DecodeFrom(data)
	if err := h.Validate(); err != nil {
		return nil, true, err
	}
	if h.Length > uint64(maxSize) {
		return nil, true, fmt.Errorf("%w: envelope declares %d bytes, limit %d", stream.ErrMalformedHeader, h.Length, maxSize)
	}
	if h.CompressedLength > uint64(len(data)-EnvelopeHeaderSize) {
		return nil, true, stream.Truncated(EnvelopeHeaderSize, int(h.CompressedLength), len(data)-EnvelopeHeaderSize)
	}

	src := data[EnvelopeHeaderSize : EnvelopeHeaderSize+int(h.CompressedLength)]
	out, err := zstd.Decompress(make([]byte, h.Length), src)
	if err != nil {
		return nil, true, fmt.Errorf("%w: envelope: %w", stream.ErrCorruptBlock, err)
	}
	if uint64(len(out)) != h.Length {
		return nil, true, fmt.Errorf("%w: envelope decompressed to %d bytes, expected %d", stream.ErrCorruptBlock, len(out), h.Length)
	}
	return out, true, nil
}
