package asset

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/hhhFileTools/internal/testutil"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

func decode(t *testing.T, n testutil.Node, data []byte) *typetree.Struct {
	t.Helper()
	le := binary.LittleEndian
	root, err := typetree.ReadBlob(stream.NewReader(n.Blob(le, 22), le), 22)
	require.NoError(t, err)
	s, err := typetree.Decode(root, data, le)
	require.NoError(t, err)
	return s
}

func TestReference(t *testing.T) {
	tests := []struct {
		name   string
		ref    Reference
		null   bool
		local  bool
		format string
	}{
		{"null", Reference{}, true, true, "PPtr[file=0, path_id=0]"},
		{"local", Reference{FileID: 0, PathID: 5}, false, true, "PPtr[file=0, path_id=5]"},
		{"external", Reference{FileID: 2, PathID: -7}, false, false, "PPtr[file=2, path_id=-7]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.null, tt.ref.IsNull())
			assert.Equal(t, tt.local, tt.ref.IsLocal())
			assert.Equal(t, tt.format, tt.ref.String())
		})
	}
}

func TestReferenceFromValue(t *testing.T) {
	n := testutil.Node{Type: "Renderer", Name: "Base", Size: -1, Children: []testutil.Node{
		testutil.PPtrNode("GameObject", "m_GameObject"),
		testutil.VectorNode("m_Materials", testutil.PPtrNode("Material", ""), false),
		testutil.Leaf("int", "m_Layer", 4),
	}}
	w := testutil.NewWriter(binary.LittleEndian)
	w.I32(0).I64(10)
	w.I32(2).I32(1).I64(20).I32(0).I64(0)
	w.I32(3)
	s := decode(t, n, w.Bytes())

	ref, err := ReferenceAt(s, "m_GameObject")
	require.NoError(t, err)
	assert.Equal(t, Reference{FileID: 0, PathID: 10}, ref)

	_, err = ReferenceAt(s, "m_Layer")
	assert.Error(t, err)
	_, err = ReferenceAt(s, "missing")
	assert.Error(t, err)

	refs := Collect(s)
	assert.Equal(t, []Reference{
		{FileID: 0, PathID: 10},
		{FileID: 1, PathID: 20},
		{FileID: 0, PathID: 0},
	}, refs)

	assert.True(t, IsReferenceType("PPtr<Material>"))
	assert.False(t, IsReferenceType("Material"))
}

type resources map[string][]byte

func (r resources) ReadResource(path string, offset, size int64) ([]byte, error) {
	return r[path][offset : offset+size], nil
}

func TestStreamData(t *testing.T) {
	n := testutil.Node{Type: "Texture2D", Name: "Base", Size: -1, Children: []testutil.Node{
		{Type: "StreamingInfo", Name: "m_StreamData", Size: -1, Children: []testutil.Node{
			testutil.Leaf("UInt64", "offset", 8),
			testutil.Leaf("unsigned int", "size", 4),
			testutil.StringNode("path"),
		}},
	}}
	w := testutil.NewWriter(binary.LittleEndian)
	w.U64(2).U32(3).AlignedString("archive:/CAB-x/CAB-x.resS")
	s := decode(t, n, w.Bytes())

	sd := StreamDataAt(s, "m_StreamData")
	assert.Equal(t, StreamData{Offset: 2, Size: 3, Path: "archive:/CAB-x/CAB-x.resS"}, sd)
	assert.False(t, sd.IsZero())

	got, err := sd.Read(resources{"archive:/CAB-x/CAB-x.resS": []byte("abcdef")})
	require.NoError(t, err)
	assert.Equal(t, []byte("cde"), got)

	_, err = sd.Read(nil)
	assert.Error(t, err)

	assert.True(t, StreamDataAt(s, "missing").IsZero())
}
