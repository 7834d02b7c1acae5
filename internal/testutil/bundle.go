package testutil

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ulikunitz/xz/lzma"

	"github.com/EchoTools/hhhFileTools/pkg/codec"
)

// Entry is one logical file of a bundle fixture.
type Entry struct {
	Path  string
	Data  []byte
	Flags uint32
}

// Bundle builds a UnityFS container.
type Bundle struct {
	Version    uint32 // 6 when zero
	DirCodec   codec.Codec
	BlockCodec codec.Codec
	BlockSize  int // whole stream in one block when zero
	AtEnd      bool
	PadInfo    bool
	Entries    []Entry
}

// Bytes encodes the bundle.
func (b Bundle) Bytes(tb testing.TB) []byte {
	tb.Helper()

	version := b.Version
	if version == 0 {
		version = 6
	}

	var stream []byte
	type node struct {
		offset, size int64
		flags        uint32
		path         string
	}
	nodes := make([]node, len(b.Entries))
	for i, e := range b.Entries {
		nodes[i] = node{offset: int64(len(stream)), size: int64(len(e.Data)), flags: e.Flags, path: e.Path}
		stream = append(stream, e.Data...)
	}

	blockSize := b.BlockSize
	if blockSize <= 0 {
		blockSize = max(len(stream), 1)
	}

	type block struct {
		usize, csize uint32
		data         []byte
	}
	var blocks []block
	for off := 0; off < len(stream); off += blockSize {
		raw := stream[off:min(off+blockSize, len(stream))]
		c := Compress(tb, b.BlockCodec, raw)
		blocks = append(blocks, block{usize: uint32(len(raw)), csize: uint32(len(c)), data: c})
	}

	info := NewWriter(binary.BigEndian)
	info.Raw(make([]byte, 16))
	info.I32(int32(len(blocks)))
	for _, blk := range blocks {
		info.U32(blk.usize).U32(blk.csize).U16(uint16(b.BlockCodec))
	}
	info.I32(int32(len(nodes)))
	for _, n := range nodes {
		info.I64(n.offset).I64(n.size).U32(n.flags).CString(n.path)
	}
	dir := Compress(tb, b.DirCodec, info.Bytes())

	flags := uint32(b.DirCodec) | 0x40
	if b.AtEnd {
		flags |= 0x80
	}
	if b.PadInfo {
		flags |= 0x200
	}

	head := NewWriter(binary.BigEndian)
	head.CString("UnityFS").U32(version).CString("5.x.x").CString("2020.3.15f1")
	sizeAt := head.Len()
	head.I64(0).U32(uint32(len(dir))).U32(uint32(info.Len())).U32(flags)
	if version >= 7 {
		head.Align(16)
	}

	if !b.AtEnd {
		head.Raw(dir)
	}
	if b.PadInfo {
		head.Align(16)
	}
	for _, blk := range blocks {
		head.Raw(blk.data)
	}
	if b.AtEnd {
		head.Raw(dir)
	}

	out := head.Bytes()
	binary.BigEndian.PutUint64(out[sizeAt:], uint64(len(out)))
	return out
}

// LegacyBundle builds a UnityRaw container, or a UnityWeb container when Web
// is set.
type LegacyBundle struct {
	Web     bool
	Entries []Entry
}

// Bytes encodes the bundle with format version 3.
func (b LegacyBundle) Bytes(tb testing.TB) []byte {
	tb.Helper()

	dirSize := 4
	for _, e := range b.Entries {
		dirSize += len(e.Path) + 1 + 8
	}
	payload := NewWriter(binary.BigEndian)
	payload.I32(int32(len(b.Entries)))
	off := dirSize
	for _, e := range b.Entries {
		payload.CString(e.Path).U32(uint32(off)).U32(uint32(len(e.Data)))
		off += len(e.Data)
	}
	for _, e := range b.Entries {
		payload.Raw(e.Data)
	}

	body := payload.Bytes()
	sig := "UnityRaw"
	if b.Web {
		sig = "UnityWeb"
		var buf bytes.Buffer
		w, err := lzma.WriterConfig{SizeInHeader: true, Size: int64(len(body))}.NewWriter(&buf)
		if err != nil {
			tb.Fatalf("lzma writer: %v", err)
		}
		if _, err := w.Write(body); err != nil {
			tb.Fatalf("lzma write: %v", err)
		}
		if err := w.Close(); err != nil {
			tb.Fatalf("lzma close: %v", err)
		}
		body = buf.Bytes()
	}

	head := NewWriter(binary.BigEndian)
	head.CString(sig).U32(3).CString("3.x.x").CString("4.7.2f1")
	// minimum streamed bytes, header size (patched), levels before streaming, level count
	head.U32(uint32(len(body))).U32(0).U32(1).I32(1)
	head.U32(uint32(len(body))).U32(uint32(len(payload.Bytes())))
	head.U32(0).U32(uint32(dirSize)) // complete file size (patched), file info header size
	headerSize := head.Len()
	head.Raw(body)

	out := head.Bytes()
	sizeAt := len(sig) + 1 + 4 + len("3.x.x") + 1 + len("4.7.2f1") + 1 + 4
	binary.BigEndian.PutUint32(out[sizeAt:], uint32(headerSize))
	binary.BigEndian.PutUint32(out[headerSize-8:], uint32(len(out)))
	return out
}
