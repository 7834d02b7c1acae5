package archive

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/hhhFileTools/internal/testutil"
	"github.com/EchoTools/hhhFileTools/pkg/codec"
	"github.com/EchoTools/hhhFileTools/pkg/serialized"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

func textAssetFile() []byte {
	root := &testutil.Node{Type: "TextAsset", Name: "Base", Size: -1, Children: []testutil.Node{
		testutil.StringNode("m_Name"),
		testutil.StringNode("m_Script"),
	}}
	data := testutil.NewWriter(binary.LittleEndian).AlignedString("greeting").AlignedString("hello world").Bytes()
	return testutil.SerializedFile{
		Types:   []testutil.Type{{ClassID: serialized.ClassTextAsset, Root: root}},
		Objects: []testutil.Object{{PathID: 1, TypeIndex: 0, Data: data}},
	}.Bytes()
}

func sampleEntries() []testutil.Entry {
	return []testutil.Entry{
		{Path: "CAB-0123456789abcdef", Data: textAssetFile(), Flags: EntryFlagSerialized},
		{Path: "CAB-0123456789abcdef.resS", Data: testutil.Pattern(5000)},
	}
}

func TestParseUncompressedAtEnd(t *testing.T) {
	data := testutil.Bundle{AtEnd: true, Entries: sampleEntries()[:1]}.Bytes(t)

	a, err := Parse("sample.hhh", data)
	require.NoError(t, err)

	assert.Equal(t, SignatureFS, a.Signature)
	assert.Equal(t, uint32(6), a.Version)
	assert.Equal(t, "2020.3.15f1", a.UnityRevision)
	assert.NotZero(t, a.Flags&FlagInfoAtEnd)
	require.Len(t, a.Blocks, 1)
	require.Len(t, a.Entries(), 1)

	e := a.Entries()[0]
	assert.Equal(t, "CAB-0123456789abcdef", e.Path)
	assert.Equal(t, uint32(EntryFlagSerialized), e.Flags)

	raw, err := e.Data()
	require.NoError(t, err)
	f, err := serialized.Parse(e.Path, raw)
	require.NoError(t, err)

	o, ok := f.Object(1)
	require.True(t, ok)
	obj, err := f.Decode(o)
	require.NoError(t, err)

	require.Len(t, obj.Fields, 2)
	assert.Equal(t, "m_Name", obj.Fields[0].Name)
	name, _ := obj.String("m_Name")
	assert.Equal(t, "greeting", name)
	script, _ := obj.String("m_Script")
	assert.Equal(t, "hello world", script)
}

func TestParseCodecsMatchUncompressed(t *testing.T) {
	plain := testutil.Bundle{Entries: sampleEntries()}.Bytes(t)
	want, err := Parse("plain", plain)
	require.NoError(t, err)

	tests := []struct {
		name   string
		bundle testutil.Bundle
	}{
		{"lz4", testutil.Bundle{DirCodec: codec.LZ4, BlockCodec: codec.LZ4}},
		{"lz4 blocks", testutil.Bundle{DirCodec: codec.LZ4, BlockCodec: codec.LZ4, BlockSize: 1024}},
		{"lz4hc v7", testutil.Bundle{Version: 7, DirCodec: codec.LZ4HC, BlockCodec: codec.LZ4HC, BlockSize: 2048}},
		{"lzma", testutil.Bundle{DirCodec: codec.LZMA, BlockCodec: codec.LZMA}},
		{"padded", testutil.Bundle{Version: 7, DirCodec: codec.LZ4, BlockCodec: codec.LZ4, PadInfo: true}},
		{"at end", testutil.Bundle{Version: 8, DirCodec: codec.LZ4, BlockCodec: codec.LZ4, AtEnd: true, BlockSize: 700}},
		{"padded v6", testutil.Bundle{Version: 6, DirCodec: codec.LZ4, BlockCodec: codec.LZ4, PadInfo: true}},
		{"padded at end v6", testutil.Bundle{Version: 6, DirCodec: codec.LZ4, BlockCodec: codec.LZ4, AtEnd: true, PadInfo: true, BlockSize: 700}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.bundle.Entries = sampleEntries()
			got, err := Parse(tt.name, tt.bundle.Bytes(t), WithConcurrency(3))
			require.NoError(t, err)

			require.Len(t, got.Entries(), len(want.Entries()))
			for i, e := range got.Entries() {
				w := want.Entries()[i]
				assert.Equal(t, w.Path, e.Path)
				assert.Equal(t, w.Offset, e.Offset)
				gotData, err := e.Data()
				require.NoError(t, err)
				wantData, _ := w.Data()
				assert.True(t, bytes.Equal(wantData, gotData), "entry %s differs", e.Path)
			}
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	inner := testutil.Bundle{DirCodec: codec.LZ4, BlockCodec: codec.LZ4, Entries: sampleEntries()}.Bytes(t)
	wrapped := testutil.Envelope(t, inner)
	assert.True(t, IsArchive(wrapped))

	a, err := Parse("wrapped", wrapped)
	require.NoError(t, err)
	assert.True(t, a.Envelope)
	require.Len(t, a.Entries(), 2)

	t.Run("corrupt", func(t *testing.T) {
		bad := bytes.Clone(wrapped)
		binary.LittleEndian.PutUint64(bad[8:16], uint64(len(inner)+10))
		_, err := Parse("bad", bad)
		assert.ErrorIs(t, err, stream.ErrCorruptBlock)
	})

	t.Run("bad header", func(t *testing.T) {
		bad := bytes.Clone(wrapped)
		binary.LittleEndian.PutUint32(bad[4:8], 8)
		_, err := Parse("bad", bad)
		assert.ErrorIs(t, err, stream.ErrMalformedHeader)
	})
}

func TestEntryLookup(t *testing.T) {
	a, err := Parse("sample", testutil.Bundle{Entries: sampleEntries()}.Bytes(t))
	require.NoError(t, err)

	e, ok := a.Entry("CAB-0123456789abcdef.resS")
	require.True(t, ok)
	assert.True(t, e.IsResource())

	e, ok = a.Entry("archive:/CAB-0123456789abcdef/CAB-0123456789ABCDEF.resS")
	require.True(t, ok)
	assert.Equal(t, "cab-0123456789abcdef.ress", e.Name())

	_, ok = a.Entry("missing")
	assert.False(t, ok)

	rs, err := a.Open("CAB-0123456789abcdef.resS")
	require.NoError(t, err)
	got, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, testutil.Pattern(5000), got)

	_, err = a.Open("missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestParseLegacy(t *testing.T) {
	entries := sampleEntries()
	for _, web := range []bool{false, true} {
		name := SignatureRaw
		if web {
			name = SignatureWeb
		}
		t.Run(name, func(t *testing.T) {
			a, err := Parse(name, testutil.LegacyBundle{Web: web, Entries: entries}.Bytes(t))
			require.NoError(t, err)
			assert.Equal(t, name, a.Signature)
			assert.Equal(t, uint32(3), a.Version)
			assert.Equal(t, "4.7.2f1", a.UnityRevision)

			require.Len(t, a.Entries(), 2)
			for i, e := range a.Entries() {
				assert.Equal(t, entries[i].Path, e.Path)
				data, err := e.Data()
				require.NoError(t, err)
				assert.Equal(t, entries[i].Data, data)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Run("unknown signature", func(t *testing.T) {
		_, err := Parse("junk", []byte("definitely not a bundle"))
		assert.ErrorIs(t, err, ErrUnknownSignature)
		assert.ErrorIs(t, err, stream.ErrMalformedHeader)

		var serr *stream.Error
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "junk", serr.Entry)
	})

	t.Run("unsupported directory codec", func(t *testing.T) {
		data := testutil.Bundle{Entries: sampleEntries()}.Bytes(t)
		patchFlags(t, data, func(f uint32) uint32 { return f&^FlagCodecMask | uint32(codec.LZHAM) })
		_, err := Parse("lzham", data)
		assert.ErrorIs(t, err, stream.ErrUnsupportedCodec)
	})

	t.Run("bad version", func(t *testing.T) {
		data := testutil.Bundle{Version: 99, Entries: sampleEntries()}.Bytes(t)
		_, err := Parse("v99", data)
		assert.ErrorIs(t, err, stream.ErrMalformedHeader)
	})

	t.Run("truncated", func(t *testing.T) {
		data := testutil.Bundle{Entries: sampleEntries()}.Bytes(t)
		_, err := Parse("short", data[:len(data)-100])
		assert.ErrorIs(t, err, stream.ErrMalformedHeader)
	})
}

func TestCorruptBlockIsolated(t *testing.T) {
	b := testutil.Bundle{DirCodec: codec.None, BlockCodec: codec.LZ4, AtEnd: true, BlockSize: 4096}
	b.Entries = []testutil.Entry{
		{Path: "first", Data: testutil.Pattern(4096)},
		{Path: "second", Data: testutil.Pattern(4096)},
	}
	data := b.Bytes(t)

	clean, err := Parse("clean", data)
	require.NoError(t, err)
	require.Len(t, clean.Blocks, 2)

	// Locate the second block: blocks end where the trailing directory starts.
	end := int64(len(data)) - int64(clean.CompressedInfoSize)
	start := end - int64(clean.Blocks[1].CompressedSize)
	for i := start; i < end; i++ {
		data[i] = 0xff
	}

	a, err := Parse("corrupt", data)
	require.NoError(t, err)

	first, _ := a.Entry("first")
	got, err := first.Data()
	require.NoError(t, err)
	assert.Equal(t, testutil.Pattern(4096), got)

	second, _ := a.Entry("second")
	_, err = second.Data()
	assert.ErrorIs(t, err, stream.ErrCorruptBlock)
}

func TestParseSizeLimits(t *testing.T) {
	t.Run("envelope length", func(t *testing.T) {
		data := make([]byte, EnvelopeHeaderSize+8)
		copy(data, EnvelopeMagic[:])
		binary.LittleEndian.PutUint32(data[4:8], 16)
		binary.LittleEndian.PutUint64(data[8:16], 1<<62)
		binary.LittleEndian.PutUint64(data[16:24], 8)
		require.True(t, IsArchive(data))

		_, err := Parse("huge", data)
		assert.ErrorIs(t, err, stream.ErrMalformedHeader)

		wrapped := testutil.Envelope(t, testutil.Bundle{Entries: sampleEntries()}.Bytes(t))
		_, err = Parse("limited", wrapped, WithMaxSize(16))
		assert.ErrorIs(t, err, stream.ErrMalformedHeader)
	})

	t.Run("block expansion", func(t *testing.T) {
		data := testutil.Bundle{DirCodec: codec.None, BlockCodec: codec.LZ4, AtEnd: true, Entries: sampleEntries()}.Bytes(t)
		clean, err := Parse("clean", data)
		require.NoError(t, err)
		require.Len(t, clean.Blocks, 1)

		// Hash and block count precede the first block's uncompressed size.
		at := len(data) - int(clean.CompressedInfoSize) + 20
		binary.BigEndian.PutUint32(data[at:], 0xffffffff)
		_, err = Parse("bomb", data)
		assert.ErrorIs(t, err, stream.ErrCorruptBlock)
	})

	t.Run("total size", func(t *testing.T) {
		data := testutil.Bundle{Entries: sampleEntries()}.Bytes(t)
		_, err := Parse("limited", data, WithMaxSize(1024))
		assert.ErrorIs(t, err, stream.ErrMalformedHeader)

		_, err = Parse("roomy", data, WithMaxSize(1<<20))
		assert.NoError(t, err)
	})

	t.Run("legacy payload", func(t *testing.T) {
		data := testutil.LegacyBundle{Web: true, Entries: sampleEntries()}.Bytes(t)
		_, err := Parse("limited", data, WithMaxSize(64))
		assert.ErrorIs(t, err, stream.ErrMalformedHeader)
	})
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level0.hhh")
	require.NoError(t, os.WriteFile(path, testutil.Bundle{Entries: sampleEntries()}.Bytes(t), 0o644))

	a, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "level0.hhh", a.Name)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.hhh"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// patchFlags rewrites the UnityFS header flags word in place.
func patchFlags(t *testing.T, data []byte, fn func(uint32) uint32) {
	t.Helper()
	r := stream.NewReader(data, binary.BigEndian)
	var h Header
	require.NoError(t, readCommonHeader(r, &h))
	at := r.Pos() + 8 + 4 + 4
	binary.BigEndian.PutUint32(data[at:], fn(binary.BigEndian.Uint32(data[at:])))
}
