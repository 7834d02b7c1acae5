package archive

import (
	"fmt"

	"github.com/EchoTools/hhhFileTools/pkg/codec"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// Header flag bits of a UnityFS container.
const (
	FlagCodecMask        = codec.Mask
	FlagCombined         = 0x40  // blocks info and directory stored together; always read as one section
	FlagInfoAtEnd        = 0x80  // blocks info stored after the data blocks
	FlagInfoNeedsPadding = 0x200 // data blocks start on a 16-byte boundary
)

// Block flag bits. BlockFlagStreamed marks blocks written for streamed
// loading; their bytes are laid out like any other block and need no
// special handling.
const (
	BlockFlagStreamed = 0x40
)

// Entry flag bits.
const (
	EntryFlagSerialized = 0x4
)

// Header is the preamble shared by all container kinds.
type Header struct {
	Signature     string
	Version       uint32
	UnityVersion  string
	UnityRevision string

	// UnityFS only.
	Size                 int64
	CompressedInfoSize   uint32
	UncompressedInfoSize uint32
	Flags                uint32
}

// InfoCodec returns the codec of the blocks info section.
func (h *Header) InfoCodec() codec.Codec { return codec.FromFlags(h.Flags) }

// Validate checks the header against the size of the container bytes.
func (h *Header) Validate(size int64) error {
	switch h.Signature {
	case SignatureFS:
		if h.Version < 6 || h.Version > 8 {
			return fmt.Errorf("%w: UnityFS version %d", stream.ErrMalformedHeader, h.Version)
		}
		if h.Size > size {
			return fmt.Errorf("%w: declared size %d exceeds %d bytes", stream.ErrMalformedHeader, h.Size, size)
		}
		if int64(h.CompressedInfoSize) > size {
			return fmt.Errorf("%w: blocks info of %d bytes exceeds %d bytes", stream.ErrMalformedHeader, h.CompressedInfoSize, size)
		}
	case SignatureRaw, SignatureWeb:
		if h.Version > 6 {
			return fmt.Errorf("%w: %s version %d", stream.ErrMalformedHeader, h.Signature, h.Version)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignature, h.Signature)
	}
	return nil
}

// BlockInfo describes one storage block.
type BlockInfo struct {
	UncompressedSize uint32
	CompressedSize   uint32
	Flags            uint16
}

// Codec returns the block's compression codec.
func (b BlockInfo) Codec() codec.Codec { return codec.FromFlags(uint32(b.Flags)) }

// node is one directory record.
type node struct {
	offset, size int64
	flags        uint32
	path         string
}

func readFSHeader(r *stream.Reader, h *Header) error {
	var err error
	if h.Size, err = r.I64(); err != nil {
		return err
	}
	if h.CompressedInfoSize, err = r.U32(); err != nil {
		return err
	}
	if h.UncompressedInfoSize, err = r.U32(); err != nil {
		return err
	}
	if h.Flags, err = r.U32(); err != nil {
		return err
	}
	return nil
}

// readFS parses a UnityFS container after its common header. It returns the
// block table, directory and the offset of the first data block.
func readFS(r *stream.Reader, h *Header, maxSize int64) ([]BlockInfo, []node, int64, error) {
	if h.Version >= 7 {
		if err := r.Align(16); err != nil {
			return nil, nil, 0, err
		}
	}
	if int64(h.UncompressedInfoSize) > maxSize {
		return nil, nil, 0, fmt.Errorf("%w: blocks info of %d bytes, limit %d", stream.ErrMalformedHeader, h.UncompressedInfoSize, maxSize)
	}

	var (
		raw []byte
		err error
	)
	if h.Flags&FlagInfoAtEnd != 0 {
		pos := r.Pos()
		if err = r.Seek(r.Len() - int64(h.CompressedInfoSize)); err != nil {
			return nil, nil, 0, err
		}
		if raw, err = r.Bytes(int(h.CompressedInfoSize)); err != nil {
			return nil, nil, 0, err
		}
		if err = r.Seek(pos); err != nil {
			return nil, nil, 0, err
		}
	} else if raw, err = r.Bytes(int(h.CompressedInfoSize)); err != nil {
		return nil, nil, 0, err
	}
	if h.Flags&FlagInfoNeedsPadding != 0 {
		if err = r.Align(16); err != nil {
			return nil, nil, 0, err
		}
	}
	blockStart := r.Pos()

	info, err := codec.Decompress(h.InfoCodec(), raw, int(h.UncompressedInfoSize))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("decompress blocks info: %w", err)
	}

	blocks, nodes, err := readBlocksInfo(stream.NewReader(info, r.Order()))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read blocks info: %w", err)
	}
	return blocks, nodes, blockStart, nil
}

func readBlocksInfo(r *stream.Reader) ([]BlockInfo, []node, error) {
	// Archive hash, unused.
	if err := r.Skip(16); err != nil {
		return nil, nil, err
	}

	count, err := r.I32()
	if err != nil {
		return nil, nil, err
	}
	if count < 0 || int64(count)*10 > r.Remaining() {
		return nil, nil, fmt.Errorf("%w: %d blocks in %d bytes", stream.ErrMalformedHeader, count, r.Remaining())
	}
	blocks := make([]BlockInfo, count)
	for i := range blocks {
		b := &blocks[i]
		if b.UncompressedSize, err = r.U32(); err != nil {
			return nil, nil, err
		}
		if b.CompressedSize, err = r.U32(); err != nil {
			return nil, nil, err
		}
		if b.Flags, err = r.U16(); err != nil {
			return nil, nil, err
		}
	}

	count, err = r.I32()
	if err != nil {
		return nil, nil, err
	}
	if count < 0 || int64(count)*21 > r.Remaining() {
		return nil, nil, fmt.Errorf("%w: %d directory nodes in %d bytes", stream.ErrMalformedHeader, count, r.Remaining())
	}
	nodes := make([]node, count)
	for i := range nodes {
		n := &nodes[i]
		if n.offset, err = r.I64(); err != nil {
			return nil, nil, err
		}
		if n.size, err = r.I64(); err != nil {
			return nil, nil, err
		}
		if n.flags, err = r.U32(); err != nil {
			return nil, nil, err
		}
		if n.path, err = r.StringToNull(); err != nil {
			return nil, nil, err
		}
	}
	return blocks, nodes, nil
}
