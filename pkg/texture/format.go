package texture

import (
	"fmt"

	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// MaxDimension is the largest width or height accepted. It keeps every base
// level size within int range and bounds the decoded image allocation.
const MaxDimension = 16384

// Format is the engine's TextureFormat tag.
type Format int32

const (
	Alpha8             Format = 1
	ARGB4444           Format = 2
	RGB24              Format = 3
	RGBA32             Format = 4
	ARGB32             Format = 5
	RGB565             Format = 7
	R16                Format = 9
	DXT1               Format = 10
	DXT5               Format = 12
	RGBA4444           Format = 13
	BGRA32             Format = 14
	RHalf              Format = 15
	RGHalf             Format = 16
	RGBAHalf           Format = 17
	RFloat             Format = 18
	RGFloat            Format = 19
	RGBAFloat          Format = 20
	YUY2               Format = 21
	RGB9e5Float        Format = 22
	BC6H               Format = 24
	BC7                Format = 25
	BC4                Format = 26
	BC5                Format = 27
	DXT1Crunched       Format = 28
	DXT5Crunched       Format = 29
	PVRTC_RGB2         Format = 30
	PVRTC_RGBA2        Format = 31
	PVRTC_RGB4         Format = 32
	PVRTC_RGBA4        Format = 33
	ETC_RGB4           Format = 34
	EAC_R              Format = 41
	EAC_R_SIGNED       Format = 42
	EAC_RG             Format = 43
	EAC_RG_SIGNED      Format = 44
	ETC2_RGB           Format = 45
	ETC2_RGBA1         Format = 46
	ETC2_RGBA8         Format = 47
	ASTC_RGB_4x4       Format = 48
	ASTC_RGB_5x5       Format = 49
	ASTC_RGB_6x6       Format = 50
	ASTC_RGB_8x8       Format = 51
	ASTC_RGB_10x10     Format = 52
	ASTC_RGB_12x12     Format = 53
	ASTC_RGBA_4x4      Format = 54
	ASTC_RGBA_5x5      Format = 55
	ASTC_RGBA_6x6      Format = 56
	ASTC_RGBA_8x8      Format = 57
	ASTC_RGBA_10x10    Format = 58
	ASTC_RGBA_12x12    Format = 59
	ETC_RGB4_3DS       Format = 60
	ETC_RGBA8_3DS      Format = 61
	RG16               Format = 62
	R8                 Format = 63
	ETC_RGB4Crunched   Format = 64
	ETC2_RGBA8Crunched Format = 65
	RG32               Format = 72
	RGB48              Format = 73
	RGBA64             Format = 74
)

var formatNames = map[Format]string{
	Alpha8: "Alpha8", ARGB4444: "ARGB4444", RGB24: "RGB24", RGBA32: "RGBA32",
	ARGB32: "ARGB32", RGB565: "RGB565", R16: "R16", DXT1: "DXT1", DXT5: "DXT5",
	RGBA4444: "RGBA4444", BGRA32: "BGRA32", RHalf: "RHalf", RGHalf: "RGHalf",
	RGBAHalf: "RGBAHalf", RFloat: "RFloat", RGFloat: "RGFloat", RGBAFloat: "RGBAFloat",
	YUY2: "YUY2", RGB9e5Float: "RGB9e5Float", BC6H: "BC6H", BC7: "BC7", BC4: "BC4",
	BC5: "BC5", DXT1Crunched: "DXT1Crunched", DXT5Crunched: "DXT5Crunched",
	PVRTC_RGB2: "PVRTC_RGB2", PVRTC_RGBA2: "PVRTC_RGBA2", PVRTC_RGB4: "PVRTC_RGB4",
	PVRTC_RGBA4: "PVRTC_RGBA4", ETC_RGB4: "ETC_RGB4", EAC_R: "EAC_R",
	EAC_R_SIGNED: "EAC_R_SIGNED", EAC_RG: "EAC_RG", EAC_RG_SIGNED: "EAC_RG_SIGNED",
	ETC2_RGB: "ETC2_RGB", ETC2_RGBA1: "ETC2_RGBA1", ETC2_RGBA8: "ETC2_RGBA8",
	ASTC_RGB_4x4: "ASTC_RGB_4x4", ASTC_RGB_5x5: "ASTC_RGB_5x5", ASTC_RGB_6x6: "ASTC_RGB_6x6",
	ASTC_RGB_8x8: "ASTC_RGB_8x8", ASTC_RGB_10x10: "ASTC_RGB_10x10", ASTC_RGB_12x12: "ASTC_RGB_12x12",
	ASTC_RGBA_4x4: "ASTC_RGBA_4x4", ASTC_RGBA_5x5: "ASTC_RGBA_5x5", ASTC_RGBA_6x6: "ASTC_RGBA_6x6",
	ASTC_RGBA_8x8: "ASTC_RGBA_8x8", ASTC_RGBA_10x10: "ASTC_RGBA_10x10", ASTC_RGBA_12x12: "ASTC_RGBA_12x12",
	ETC_RGB4_3DS: "ETC_RGB4_3DS", ETC_RGBA8_3DS: "ETC_RGBA8_3DS", RG16: "RG16", R8: "R8",
	ETC_RGB4Crunched: "ETC_RGB4Crunched", ETC2_RGBA8Crunched: "ETC2_RGBA8Crunched",
	RG32: "RG32", RGB48: "RGB48", RGBA64: "RGBA64",
}

// FormatName returns a human-readable name for a format tag.
func FormatName(f Format) string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(f))
}

func (f Format) String() string { return FormatName(f) }

// MarshalText encodes the format by name.
func (f Format) MarshalText() ([]byte, error) { return []byte(FormatName(f)), nil }

// blockBytes returns the size of one 4x4 block, or 0 for per-pixel formats.
func (f Format) blockBytes() int {
	switch f {
	case DXT1, BC4:
		return 8
	case DXT5, BC5:
		return 16
	}
	return 0
}

// pixelBytes returns the size of one pixel for uncompressed formats.
func (f Format) pixelBytes() int {
	switch f {
	case Alpha8, R8:
		return 1
	case ARGB4444, RGBA4444, RGB565, R16, RG16:
		return 2
	case RGB24:
		return 3
	case RGBA32, ARGB32, BGRA32:
		return 4
	}
	return 0
}

// Supported reports whether Decode handles f.
func (f Format) Supported() bool {
	return f.blockBytes() > 0 || f.pixelBytes() > 0
}

// BaseLevelSize returns the byte size of the base mip level, or 0 for
// unsupported formats.
func (f Format) BaseLevelSize(width, height int) int {
	if b := f.blockBytes(); b > 0 {
		return ((width + 3) / 4) * ((height + 3) / 4) * b
	}
	return width * height * f.pixelBytes()
}

func checkDimensions(width, height int64) error {
	if width < 0 || height < 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: texture dimensions %dx%d", stream.ErrMalformedHeader, width, height)
	}
	return nil
}
