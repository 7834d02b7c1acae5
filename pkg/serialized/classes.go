package serialized

import "strconv"

// Well-known class IDs.
const (
	ClassGameObject          int32 = 1
	ClassTransform           int32 = 4
	ClassMaterial            int32 = 21
	ClassMeshRenderer        int32 = 23
	ClassTexture2D           int32 = 28
	ClassMeshFilter          int32 = 33
	ClassMesh                int32 = 43
	ClassShader              int32 = 48
	ClassTextAsset           int32 = 49
	ClassAnimationClip       int32 = 74
	ClassAudioClip           int32 = 83
	ClassCubemap             int32 = 89
	ClassAvatar              int32 = 90
	ClassAnimatorController  int32 = 91
	ClassAnimator            int32 = 95
	ClassMonoBehaviour       int32 = 114
	ClassMonoScript          int32 = 115
	ClassFont                int32 = 128
	ClassSkinnedMeshRenderer int32 = 137
	ClassAssetBundle         int32 = 142
	ClassSprite              int32 = 213
	ClassRectTransform       int32 = 224
	ClassSpriteAtlas         int32 = 687078895
)

var classNames = map[int32]string{
	0:                        "Object",
	ClassGameObject:          "GameObject",
	ClassTransform:           "Transform",
	ClassMaterial:            "Material",
	ClassMeshRenderer:        "MeshRenderer",
	ClassTexture2D:           "Texture2D",
	ClassMeshFilter:          "MeshFilter",
	ClassMesh:                "Mesh",
	ClassShader:              "Shader",
	ClassTextAsset:           "TextAsset",
	ClassAnimationClip:       "AnimationClip",
	ClassAudioClip:           "AudioClip",
	ClassCubemap:             "Cubemap",
	ClassAvatar:              "Avatar",
	ClassAnimatorController:  "AnimatorController",
	ClassAnimator:            "Animator",
	ClassMonoBehaviour:       "MonoBehaviour",
	ClassMonoScript:          "MonoScript",
	ClassFont:                "Font",
	ClassSkinnedMeshRenderer: "SkinnedMeshRenderer",
	ClassAssetBundle:         "AssetBundle",
	ClassSprite:              "Sprite",
	ClassRectTransform:       "RectTransform",
	ClassSpriteAtlas:         "SpriteAtlas",
}

// ClassName returns the name of a well-known class, or "Class<id>".
func ClassName(classID int32) string {
	if name, ok := classNames[classID]; ok {
		return name
	}
	return "Class" + strconv.Itoa(int(classID))
}
