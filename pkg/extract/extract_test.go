package extract

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/hhhFileTools/internal/testutil"
	"github.com/EchoTools/hhhFileTools/pkg/archive"
	"github.com/EchoTools/hhhFileTools/pkg/material"
	"github.com/EchoTools/hhhFileTools/pkg/serialized"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
	"github.com/EchoTools/hhhFileTools/pkg/texture"
)

var le = binary.LittleEndian

func textAssetType() testutil.Type {
	return testutil.Type{ClassID: serialized.ClassTextAsset, Root: &testutil.Node{
		Type: "TextAsset", Name: "Base", Size: -1, Children: []testutil.Node{
			testutil.StringNode("m_Name"),
			testutil.StringNode("m_Script"),
		},
	}}
}

func materialType() testutil.Type {
	colorRGBA := testutil.Node{Type: "ColorRGBA", Size: 16, Children: []testutil.Node{
		testutil.Leaf("float", "r", 4), testutil.Leaf("float", "g", 4),
		testutil.Leaf("float", "b", 4), testutil.Leaf("float", "a", 4),
	}}
	return testutil.Type{ClassID: serialized.ClassMaterial, Root: &testutil.Node{
		Type: "Material", Name: "Base", Size: -1, Children: []testutil.Node{
			testutil.StringNode("m_Name"),
			testutil.PPtrNode("Shader", "m_Shader"),
			{Type: "UnityPropertySheet", Name: "m_SavedProperties", Size: -1, Children: []testutil.Node{
				testutil.MapNode("m_Colors", testutil.StringNode(""), colorRGBA),
			}},
		},
	}}
}

func textureType() testutil.Type {
	return testutil.Type{ClassID: serialized.ClassTexture2D, Root: &testutil.Node{
		Type: "Texture2D", Name: "Base", Size: -1, Children: []testutil.Node{
			testutil.StringNode("m_Name"),
			testutil.Leaf("int", "m_Width", 4),
			testutil.Leaf("int", "m_Height", 4),
			testutil.Leaf("int", "m_TextureFormat", 4),
			{Type: "TypelessData", Name: "image data", Size: -1, Align: true},
			{Type: "StreamingInfo", Name: "m_StreamData", Size: -1, Children: []testutil.Node{
				testutil.Leaf("UInt64", "offset", 8),
				testutil.Leaf("unsigned int", "size", 4),
				testutil.StringNode("path"),
			}},
		},
	}}
}

var textData = testutil.NewWriter(le).AlignedString("readme").AlignedString("hello").Bytes()

func sampleFile() testutil.SerializedFile {
	mat := testutil.NewWriter(le).
		AlignedString("Hull").
		I32(0).I64(0).
		I32(1).AlignedString("_Color").F32(1).F32(0).F32(0).F32(1).
		Bytes()
	// 2x2 RGBA32 streamed from bytes 16..32 of the resource entry.
	tex := testutil.NewWriter(le).
		AlignedString("tile").
		I32(2).I32(2).I32(int32(texture.RGBA32)).
		Blob(nil).
		U64(16).U32(16).AlignedString("archive:/CAB-a/CAB-a.resS").
		Bytes()

	return testutil.SerializedFile{
		Types: []testutil.Type{textAssetType(), materialType(), textureType()},
		Objects: []testutil.Object{
			{PathID: 1, TypeIndex: 0, Data: textData},
			{PathID: 2, TypeIndex: 1, Data: mat},
			{PathID: 3, TypeIndex: 2, Data: tex},
		},
	}
}

func sampleBundle(t *testing.T) []byte {
	t.Helper()
	return testutil.Bundle{Entries: []testutil.Entry{
		{Path: "CAB-a", Data: sampleFile().Bytes(), Flags: archive.EntryFlagSerialized},
		{Path: "CAB-a.resS", Data: testutil.Pattern(256)},
	}}.Bytes(t)
}

func TestRunArchive(t *testing.T) {
	x := New(WithPixels(true), WithGeometry(true), WithConcurrency(2))
	sum, err := x.Run(context.Background(), "sample.hhh", sampleBundle(t))
	require.NoError(t, err)

	require.NotNil(t, sum.Archive)
	assert.Equal(t, archive.SignatureFS, sum.Archive.Signature)
	assert.Equal(t, 2, sum.Archive.Entries)
	require.Len(t, sum.Files, 1)
	assert.Equal(t, "CAB-a", sum.Files[0].Name)
	assert.Equal(t, uint32(22), sum.Files[0].HeaderVersion)
	assert.Equal(t, 3, sum.Files[0].Objects)

	require.Len(t, sum.Records, 3)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, map[string]int{"TextAsset": 1, "Material": 1, "Texture2D": 1}, sum.ByType)

	t.Run("order and identity", func(t *testing.T) {
		for i, r := range sum.Records {
			assert.Equal(t, int64(i+1), r.PathID)
			assert.NoError(t, r.Err)
			assert.NotNil(t, r.Fields)
		}
		assert.Equal(t, xxhash.Sum64(textData), sum.Records[0].Checksum)
		s, _ := sum.Records[0].Fields.String("m_Script")
		assert.Equal(t, "hello", s)
	})

	t.Run("material view", func(t *testing.T) {
		m := sum.Records[1].Material
		require.NotNil(t, m)
		c, ok := m.Color(material.MainColor)
		require.True(t, ok)
		assert.Equal(t, material.Color{R: 1, A: 1}, c)
	})

	t.Run("streamed pixels flipped", func(t *testing.T) {
		img := sum.Records[2].Pixels
		require.NotNil(t, img)
		// Pattern bytes 24..31 are the stored second row.
		assert.Equal(t, color.NRGBA{3, 3, 3, 3}, img.NRGBAAt(0, 0))
		assert.Equal(t, color.NRGBA{4, 4, 4, 4}, img.NRGBAAt(1, 0))
		assert.Equal(t, color.NRGBA{2, 2, 2, 2}, img.NRGBAAt(0, 1))
	})
}

func TestRunClassFilter(t *testing.T) {
	x := New(WithClassFilter(serialized.ClassTexture2D))
	sum, err := x.Run(context.Background(), "sample.hhh", sampleBundle(t))
	require.NoError(t, err)

	require.Len(t, sum.Records, 1)
	assert.Equal(t, "Texture2D", sum.Records[0].Type)
	assert.Nil(t, sum.Records[0].Pixels)
}

func TestRunUnknownSchema(t *testing.T) {
	f := sampleFile()
	f.NoTypeTree = true
	data := f.Bytes()

	sum, err := New().Run(context.Background(), "level0", data)
	require.NoError(t, err)
	assert.Nil(t, sum.Archive)
	require.Len(t, sum.Records, 3)
	assert.Equal(t, 3, sum.Failed)

	r := sum.Records[0]
	assert.Equal(t, "TextAsset", r.Type)
	assert.Nil(t, r.Fields)
	assert.ErrorIs(t, r.Err, stream.ErrUnknownSchema)
	var se *stream.Error
	require.ErrorAs(t, r.Err, &se)
	assert.Equal(t, int64(1), se.PathID)
	assert.Equal(t, xxhash.Sum64(textData), r.Checksum)
}

func TestRunPartialFailure(t *testing.T) {
	f := sampleFile()
	f.Objects[1].Data = f.Objects[1].Data[:8] // material cut short

	sum, err := New().Run(context.Background(), "level0", f.Bytes())
	require.NoError(t, err)
	require.Len(t, sum.Records, 3)
	assert.Equal(t, 1, sum.Failed)
	assert.NoError(t, sum.Records[0].Err)
	assert.Error(t, sum.Records[1].Err)
	assert.NotEmpty(t, sum.Records[1].Error)
	assert.NoError(t, sum.Records[2].Err)
}

func TestRunStopped(t *testing.T) {
	t.Run("abort flag", func(t *testing.T) {
		var abort atomic.Bool
		abort.Store(true)
		sum, err := New(WithAbort(&abort)).Run(context.Background(), "sample.hhh", sampleBundle(t))
		assert.ErrorIs(t, err, ErrAborted)
		require.NotNil(t, sum)
		assert.Empty(t, sum.Records)
		assert.Len(t, sum.Files, 1)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New().Run(ctx, "sample.hhh", sampleBundle(t))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRunMalformed(t *testing.T) {
	_, err := New().Run(context.Background(), "junk", []byte("definitely not an asset file"))
	assert.ErrorIs(t, err, stream.ErrMalformedHeader)
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.hhh")
	require.NoError(t, os.WriteFile(path, sampleBundle(t), 0644))

	sum, err := New().RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "sample.hhh", sum.Source)
	assert.Len(t, sum.Records, 3)

	_, err = New().RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.hhh"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRecordJSON(t *testing.T) {
	r := Record{File: "CAB-a", PathID: 1<<60 + 1, ClassID: 49, Type: "TextAsset", Checksum: 1<<63 + 5}
	out, err := json.Marshal(r)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `"path_id":"1152921504606846977"`)
	assert.Contains(t, s, `"checksum":"9223372036854775813"`)
	assert.NotContains(t, s, `"error"`)
	assert.NotContains(t, s, `"geometry"`)

	r.fail(errors.New("boom"))
	out, err = json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"error":"boom"`)
}

func TestSummaryJSON(t *testing.T) {
	sum, err := New().Run(context.Background(), "sample.hhh", sampleBundle(t))
	require.NoError(t, err)

	out, err := json.Marshal(sum)
	require.NoError(t, err)
	assert.True(t, json.Valid(out))
	assert.Contains(t, string(out), `"by_type":{`)
	assert.Contains(t, string(out), `"m_Script":"hello"`)
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.hhh", "b.HHH", "c.txt", "sub/d.hhh", "sub/e.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, nil, 0644))
	}
	rel := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			r, err := filepath.Rel(dir, p)
			require.NoError(t, err)
			out[i] = filepath.ToSlash(r)
		}
		return out
	}

	tests := []struct {
		name      string
		recursive bool
		exts      []string
		want      []string
	}{
		{"default extension", false, nil, []string{"a.hhh", "b.HHH"}},
		{"recursive", true, nil, []string{"a.hhh", "b.HHH", "sub/d.hhh"}},
		{"custom extension", true, []string{"txt"}, []string{"c.txt", "sub/e.txt"}},
		{"several extensions", false, []string{".txt", ".hhh"}, []string{"a.hhh", "b.HHH", "c.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := Scan(dir, tt.recursive, tt.exts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rel(files))
		})
	}

	t.Run("missing dir", func(t *testing.T) {
		_, err := Scan(filepath.Join(dir, "nope"), true)
		assert.Error(t, err)
	})
}
