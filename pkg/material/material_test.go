package material

import (
	"encoding/binary"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoTools/hhhFileTools/internal/testutil"
	"github.com/EchoTools/hhhFileTools/pkg/asset"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

var le = binary.LittleEndian

func vec2Node(name string) testutil.Node {
	return testutil.Node{Type: "Vector2f", Name: name, Size: 8, Children: []testutil.Node{
		testutil.Leaf("float", "x", 4), testutil.Leaf("float", "y", 4),
	}}
}

func colorNode() testutil.Node {
	return testutil.Node{Type: "ColorRGBA", Size: 16, Children: []testutil.Node{
		testutil.Leaf("float", "r", 4), testutil.Leaf("float", "g", 4),
		testutil.Leaf("float", "b", 4), testutil.Leaf("float", "a", 4),
	}}
}

func texEnvNode() testutil.Node {
	return testutil.Node{Type: "UnityTexEnv", Size: -1, Children: []testutil.Node{
		testutil.PPtrNode("Texture", "m_Texture"), vec2Node("m_Scale"), vec2Node("m_Offset"),
	}}
}

// table builds a property table: a map keyed by string, or in the legacy
// shape a vector of pairs keyed by FastPropertyName.
func table(name string, value testutil.Node, legacy bool) testutil.Node {
	if !legacy {
		return testutil.MapNode(name, testutil.StringNode(""), value)
	}
	key := testutil.Node{Type: "FastPropertyName", Name: "first", Size: -1, Children: []testutil.Node{
		testutil.StringNode("name"),
	}}
	value.Name = "second"
	pair := testutil.Node{Type: "pair", Size: -1, Children: []testutil.Node{key, value}}
	return testutil.VectorNode(name, pair, true)
}

func materialNode(legacy bool) testutil.Node {
	keywords := testutil.StringNode("m_ShaderKeywords")
	if legacy {
		keywords = testutil.VectorNode("m_ValidKeywords", testutil.StringNode(""), true)
	}
	return testutil.Node{Type: "Material", Name: "Base", Size: -1, Children: []testutil.Node{
		testutil.StringNode("m_Name"),
		testutil.PPtrNode("Shader", "m_Shader"),
		keywords,
		testutil.Leaf("int", "m_CustomRenderQueue", 4),
		{Type: "UnityPropertySheet", Name: "m_SavedProperties", Size: -1, Children: []testutil.Node{
			table("m_TexEnvs", texEnvNode(), legacy),
			table("m_Floats", testutil.Leaf("float", "", 4), legacy),
			table("m_Colors", colorNode(), legacy),
		}},
	}}
}

// materialData writes the same properties in either shape; FastPropertyName
// keys encode identically to plain strings.
func materialData(legacy bool) []byte {
	w := testutil.NewWriter(le).AlignedString("Hull")
	w.I32(1).I64(77)
	if legacy {
		w.I32(2).AlignedString("_EMISSION").AlignedString("_NORMALMAP")
	} else {
		w.AlignedString("_EMISSION _NORMALMAP")
	}
	w.I32(2450)

	w.I32(2)
	w.AlignedString("_MainTex").I32(0).I64(12).F32(1).F32(1).F32(0).F32(0)
	w.AlignedString("_BumpMap").I32(0).I64(0).F32(2).F32(3).F32(0.5).F32(0.25)

	w.I32(2)
	w.AlignedString("_Glossiness").F32(0.5)
	w.AlignedString("_Metallic").F32(0)

	w.I32(2)
	w.AlignedString("_Color").F32(1).F32(0.5).F32(0.25).F32(1)
	w.AlignedString("_EmissionColor").F32(0).F32(0).F32(0).F32(1)
	return w.Bytes()
}

func decodeMaterial(t *testing.T, legacy bool) *typetree.Struct {
	t.Helper()
	root, err := typetree.ReadBlob(stream.NewReader(materialNode(legacy).Blob(le, 22), le), 22)
	require.NoError(t, err)
	obj, err := typetree.Decode(root, materialData(legacy), le)
	require.NoError(t, err)
	return obj
}

func TestFromObject(t *testing.T) {
	for _, tt := range []struct {
		name   string
		legacy bool
	}{
		{"map tables", false},
		{"pair vectors", true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromObject(decodeMaterial(t, tt.legacy))
			require.NoError(t, err)

			assert.Equal(t, "Hull", v.Name)
			assert.Equal(t, asset.Reference{FileID: 1, PathID: 77}, v.Shader)
			assert.Equal(t, []string{"_EMISSION", "_NORMALMAP"}, v.Keywords)
			assert.Equal(t, int32(2450), v.RenderQueue)

			require.Len(t, v.Colors, 2)
			assert.Equal(t, MainColor, v.Colors[0].Name)
			assert.Equal(t, "_EmissionColor", v.Colors[1].Name)

			c, ok := v.Color(MainColor)
			require.True(t, ok)
			assert.Equal(t, Color{1, 0.5, 0.25, 1}, c)
			assert.Equal(t, mgl32.Vec4{1, 0.5, 0.25, 1}, c.Vec4())

			f, ok := v.Float("_Glossiness")
			require.True(t, ok)
			assert.Equal(t, float32(0.5), f)
			assert.Equal(t, "_Glossiness", v.Floats[0].Name)

			ref, ok := v.Texture("_MainTex")
			require.True(t, ok)
			assert.Equal(t, asset.Reference{PathID: 12}, ref)

			bump, ok := v.TexEnv("_BumpMap")
			require.True(t, ok)
			assert.True(t, bump.Texture.IsNull())
			assert.Equal(t, mgl32.Vec2{2, 3}, bump.Scale)
			assert.Equal(t, mgl32.Vec2{0.5, 0.25}, bump.Offset)

			_, ok = v.Color("_Missing")
			assert.False(t, ok)
			_, ok = v.Texture("_Missing")
			assert.False(t, ok)
			_, ok = v.Int("_Missing")
			assert.False(t, ok)
		})
	}

	t.Run("not a material", func(t *testing.T) {
		_, err := FromObject(&typetree.Struct{Type: "Mesh"})
		assert.Error(t, err)
	})
}

func TestColorFormatting(t *testing.T) {
	tests := []struct {
		color Color
		hex   string
		css   string
	}{
		{Color{1, 1, 1, 1}, "#FFFFFFFF", "rgba(255, 255, 255, 1.000)"},
		{Color{0, 0, 0, 1}, "#000000FF", "rgba(0, 0, 0, 1.000)"},
		{Color{0.5, 0.5, 0.5, 0.5}, "#7F7F7F7F", "rgba(127, 127, 127, 0.500)"},
		{Color{2, -1, 0, 3}, "#FF0000FF", "rgba(255, 0, 0, 1.000)"},
	}
	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			assert.Equal(t, tt.hex, tt.color.Hex())
			assert.Equal(t, tt.css, tt.color.CSS())
		})
	}
	assert.Equal(t, "RGBA(1.000, 0.500, 0.250, 0.800)", Color{1, 0.5, 0.25, 0.8}.String())
}

func TestCSS(t *testing.T) {
	v, err := FromObject(decodeMaterial(t, false))
	require.NoError(t, err)

	css := v.CSS("Hull_Mat")
	assert.Contains(t, css, ":root {")
	assert.Contains(t, css, "--hull-mat-color:")
	assert.Contains(t, css, "--hull-mat-emissioncolor:")
	assert.Contains(t, css, "rgba(255, 127, 63, 1.000)")
}
