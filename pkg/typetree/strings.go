package typetree

import (
	"bytes"
	"strconv"
)

// commonStrings is the shared string table schemas reference with the high
// offset bit set. Offsets are positions in the NUL-joined list, so order is
// significant and entries are only ever appended.
var commonStrings = []string{
	"AABB", "AnimationClip", "AnimationCurve", "AnimationState", "Array", "Base",
	"BitField", "bitset", "bool", "char", "ColorRGBA", "Component", "data", "deque",
	"double", "dynamic_array", "FastPropertyName", "first", "float", "Font",
	"GameObject", "Generic Mono", "GradientNEW", "GUID", "GUIStyle", "int", "list",
	"long long", "map", "Matrix4x4f", "MdFour", "MonoBehaviour", "MonoScript",
	"m_ByteSize", "m_Curve", "m_EditorClassIdentifier", "m_EditorHideFlags",
	"m_Enabled", "m_ExtensionPtr", "m_GameObject", "m_Index", "m_IsArray",
	"m_IsStatic", "m_MetaFlag", "m_Name", "m_ObjectHideFlags", "m_PrefabInternal",
	"m_PrefabParentObject", "m_Script", "m_StaticEditorFlags", "m_Type", "m_Version",
	"Object", "pair", "PPtr<Component>", "PPtr<GameObject>", "PPtr<Material>",
	"PPtr<MonoBehaviour>", "PPtr<MonoScript>", "PPtr<Object>", "PPtr<Prefab>",
	"PPtr<Sprite>", "PPtr<TextAsset>", "PPtr<Texture>", "PPtr<Texture2D>",
	"PPtr<Transform>", "Prefab", "Quaternionf", "Rectf", "RectInt", "RectOffset",
	"second", "set", "short", "size", "SInt16", "SInt32", "SInt64", "SInt8",
	"staticvector", "string", "TextAsset", "TextMesh", "Texture", "Texture2D",
	"Transform", "TypelessData", "UInt16", "UInt32", "UInt64", "UInt8",
	"unsigned int", "unsigned long long", "unsigned short", "vector", "Vector2f",
	"Vector3f", "Vector4f", "m_ScriptingClassIdentifier", "Gradient", "Type*",
	"int2_storage", "int3_storage", "BoundsInt", "m_CorrespondingSourceObject",
	"m_PrefabInstance", "m_PrefabAsset", "FileSize", "Hash128", "RenderingLayerMask",
}

var commonOffsets = func() map[uint32]string {
	m := make(map[uint32]string, len(commonStrings))
	var off uint32
	for _, s := range commonStrings {
		m[off] = s
		off += uint32(len(s)) + 1
	}
	return m
}()

const commonBit = 0x80000000

// CommonString returns the shared-table string at offset.
func CommonString(offset uint32) (string, bool) {
	s, ok := commonOffsets[offset]
	return s, ok
}

// resolveString reads a schema string: a local buffer offset, or a shared
// table offset when the high bit is set. Unknown references resolve to their
// numeric value so a schema never silently loses a name.
func resolveString(local []byte, ref uint32) string {
	if ref&commonBit != 0 {
		if s, ok := CommonString(ref &^ commonBit); ok {
			return s
		}
		return strconv.FormatUint(uint64(ref&^commonBit), 10)
	}
	if int(ref) >= len(local) {
		return strconv.FormatUint(uint64(ref), 10)
	}
	end := bytes.IndexByte(local[ref:], 0)
	if end < 0 {
		return string(local[ref:])
	}
	return string(local[ref : int(ref)+end])
}
