package archive

import (
	"fmt"

	"github.com/EchoTools/hhhFileTools/pkg/codec"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// legacyHeader is the part of a UnityRaw or UnityWeb header needed to find
// the payload.
type legacyHeader struct {
	headerSize       uint32
	compressedSize   uint32
	uncompressedSize uint32
}

func readLegacyHeader(r *stream.Reader, h *Header) (legacyHeader, error) {
	var lh legacyHeader
	if h.Version >= 4 {
		// Hash and CRC.
		if err := r.Skip(16 + 4); err != nil {
			return lh, err
		}
	}
	// Minimum streamed bytes.
	if _, err := r.U32(); err != nil {
		return lh, err
	}
	var err error
	if lh.headerSize, err = r.U32(); err != nil {
		return lh, err
	}
	// Levels to download before streaming.
	if _, err := r.U32(); err != nil {
		return lh, err
	}
	levels, err := r.I32()
	if err != nil {
		return lh, err
	}
	if levels < 1 || int64(levels)*8 > r.Remaining() {
		return lh, fmt.Errorf("%w: %d levels", stream.ErrMalformedHeader, levels)
	}
	// Only the last level describes the complete payload.
	if err := r.Skip(int64(levels-1) * 8); err != nil {
		return lh, err
	}
	if lh.compressedSize, err = r.U32(); err != nil {
		return lh, err
	}
	if lh.uncompressedSize, err = r.U32(); err != nil {
		return lh, err
	}
	return lh, nil
}

// readLegacy returns the decompressed payload of a UnityRaw or UnityWeb
// container and its directory. Entry offsets index into the payload.
func readLegacy(r *stream.Reader, h *Header, maxSize int64) ([]byte, []node, error) {
	lh, err := readLegacyHeader(r, h)
	if err != nil {
		return nil, nil, err
	}
	if err := r.Seek(int64(lh.headerSize)); err != nil {
		return nil, nil, fmt.Errorf("%w: header size %d", stream.ErrMalformedHeader, lh.headerSize)
	}

	var payload []byte
	switch h.Signature {
	case SignatureWeb:
		raw, err := r.Bytes(int(min(int64(lh.compressedSize), r.Remaining())))
		if err != nil {
			return nil, nil, err
		}
		if int64(lh.uncompressedSize) > maxSize {
			return nil, nil, fmt.Errorf("%w: payload of %d bytes, limit %d", stream.ErrMalformedHeader, lh.uncompressedSize, maxSize)
		}
		// Classic .lzma stream: 5 property bytes, 8 size bytes, data.
		if len(raw) < 13 {
			return nil, nil, stream.Truncated(int64(lh.headerSize), 13, len(raw))
		}
		src := make([]byte, 0, len(raw)-8)
		src = append(src, raw[:5]...)
		src = append(src, raw[13:]...)
		if payload, err = codec.Decompress(codec.LZMA, src, int(lh.uncompressedSize)); err != nil {
			return nil, nil, fmt.Errorf("decompress payload: %w", err)
		}
	default:
		payload = r.Buffer()[r.Pos():]
	}

	nodes, err := readLegacyDirectory(stream.NewReader(payload, r.Order()))
	if err != nil {
		return nil, nil, fmt.Errorf("read directory: %w", err)
	}
	return payload, nodes, nil
}

func readLegacyDirectory(r *stream.Reader) ([]node, error) {
	count, err := r.I32()
	if err != nil {
		return nil, err
	}
	if count < 0 || int64(count)*9 > r.Remaining() {
		return nil, fmt.Errorf("%w: %d directory nodes in %d bytes", stream.ErrMalformedHeader, count, r.Remaining())
	}
	nodes := make([]node, count)
	for i := range nodes {
		n := &nodes[i]
		if n.path, err = r.StringToNull(); err != nil {
			return nil, err
		}
		off, err := r.U32()
		if err != nil {
			return nil, err
		}
		size, err := r.U32()
		if err != nil {
			return nil, err
		}
		n.offset, n.size = int64(off), int64(size)
	}
	return nodes, nil
}
