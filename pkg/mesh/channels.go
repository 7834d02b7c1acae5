package mesh

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/EchoTools/hhhFileTools/pkg/serialized"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// VertexFormat is the numeric format of one vertex channel component, in the
// numbering used by 2019 and later. Older tags are converted on read.
type VertexFormat uint8

const (
	FormatFloat VertexFormat = iota
	FormatFloat16
	FormatUNorm8
	FormatSNorm8
	FormatUNorm16
	FormatSNorm16
	FormatUInt8
	FormatSInt8
	FormatUInt16
	FormatSInt16
	FormatUInt32
	FormatSInt32
)

var formatNames = [...]string{
	"Float", "Float16", "UNorm8", "SNorm8", "UNorm16", "SNorm16",
	"UInt8", "SInt8", "UInt16", "SInt16", "UInt32", "SInt32",
}

func (f VertexFormat) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("VertexFormat(%d)", uint8(f))
}

// Size returns the byte width of one component.
func (f VertexFormat) Size() int {
	switch f {
	case FormatFloat, FormatUInt32, FormatSInt32:
		return 4
	case FormatFloat16, FormatUNorm16, FormatSNorm16, FormatUInt16, FormatSInt16:
		return 2
	}
	return 1
}

// IsInteger reports whether the format holds unnormalized integers.
func (f VertexFormat) IsInteger() bool {
	return f >= FormatUInt8
}

// vertexFormat converts a raw channel format tag for the generator version.
func vertexFormat(raw uint8, v serialized.Version) (VertexFormat, error) {
	switch {
	case modern(v):
		if raw <= uint8(FormatSInt32) {
			return VertexFormat(raw), nil
		}
	case v.AtLeast(2017, 0):
		// 2017 and 2018 carried a separate Color tag at 2.
		switch {
		case raw <= 1:
			return VertexFormat(raw), nil
		case raw == 2:
			return FormatUNorm8, nil
		case raw <= 12:
			return VertexFormat(raw - 1), nil
		}
	default:
		switch raw {
		case 0:
			return FormatFloat, nil
		case 1:
			return FormatFloat16, nil
		case 2:
			return FormatUNorm8, nil
		case 3:
			return FormatUInt8, nil
		case 4:
			return FormatUInt32, nil
		}
	}
	return 0, fmt.Errorf("%w: channel format %d for version %s", stream.ErrUnsupportedMeshEncoding, raw, v)
}

// modern reports whether v uses the 2019 numbering. Stripped builds report
// 0.0.0 and are treated as current.
func modern(v serialized.Version) bool {
	return v.IsZero() || v.AtLeast(2019, 0)
}

// Channel describes one attribute inside an interleaved vertex stream.
type Channel struct {
	Stream    uint8
	Offset    uint8
	Format    VertexFormat
	Dimension uint8
}

// Stream is one interleaved vertex buffer inside the vertex data.
type Stream struct {
	ChannelMask uint32
	Offset      int
	Stride      int
}

// Semantic names what a channel holds.
type Semantic uint8

const (
	SemanticPosition Semantic = iota
	SemanticNormal
	SemanticTangent
	SemanticColor
	SemanticUV0
	SemanticUV1
	SemanticUV2
	SemanticUV3
	SemanticUV4
	SemanticUV5
	SemanticUV6
	SemanticUV7
	SemanticBlendWeight
	SemanticBlendIndices
	semanticCount
)

// semantic maps a channel slot to its meaning. 2018 reordered the slots and
// added tangents before colour.
func semantic(slot int, v serialized.Version) (Semantic, bool) {
	if v.IsZero() || v.AtLeast(2018, 0) {
		if slot < int(semanticCount) {
			return Semantic(slot), true
		}
		return 0, false
	}
	switch slot {
	case 0:
		return SemanticPosition, true
	case 1:
		return SemanticNormal, true
	case 2:
		return SemanticColor, true
	case 3, 4, 5, 6:
		return SemanticUV0 + Semantic(slot-3), true
	case 7:
		return SemanticTangent, true
	}
	return 0, false
}

// computeStreams lays out streams the way the engine does when they are not
// serialized: streams are packed back to back, each aligned to 16 bytes.
func computeStreams(channels []Channel, vertexCount int) []Stream {
	var count int
	for _, c := range channels {
		count = max(count, int(c.Stream)+1)
	}
	streams := make([]Stream, count)
	offset := 0
	for s := range streams {
		var mask uint32
		stride := 0
		for i, c := range channels {
			if int(c.Stream) == s && c.Dimension > 0 {
				mask |= 1 << i
				stride += int(c.Dimension) * c.Format.Size()
			}
		}
		streams[s] = Stream{ChannelMask: mask, Offset: offset, Stride: stride}
		offset += vertexCount * stride
		offset = (offset + 15) &^ 15
	}
	return streams
}

// readChannel de-interleaves one channel into a flat float slice.
func readChannel(data []byte, order binary.ByteOrder, s Stream, c Channel, vertexCount int) ([]float32, error) {
	dim := int(c.Dimension)
	size := c.Format.Size()
	out := make([]float32, vertexCount*dim)
	for v := range vertexCount {
		base := s.Offset + int(c.Offset) + v*s.Stride
		end := base + dim*size
		if base < 0 || end > len(data) {
			return nil, stream.Truncated(int64(base), dim*size, max(len(data)-base, 0))
		}
		for j := range dim {
			out[v*dim+j] = component(data[base+j*size:], c.Format, order)
		}
	}
	return out, nil
}

func component(b []byte, f VertexFormat, order binary.ByteOrder) float32 {
	switch f {
	case FormatFloat:
		return math.Float32frombits(order.Uint32(b))
	case FormatFloat16:
		return halfToFloat(order.Uint16(b))
	case FormatUNorm8:
		return float32(b[0]) / 255
	case FormatSNorm8:
		return max(float32(int8(b[0]))/127, -1)
	case FormatUNorm16:
		return float32(order.Uint16(b)) / 65535
	case FormatSNorm16:
		return max(float32(int16(order.Uint16(b)))/32767, -1)
	case FormatUInt8:
		return float32(b[0])
	case FormatSInt8:
		return float32(int8(b[0]))
	case FormatUInt16:
		return float32(order.Uint16(b))
	case FormatSInt16:
		return float32(int16(order.Uint16(b)))
	case FormatUInt32:
		return float32(order.Uint32(b))
	case FormatSInt32:
		return float32(int32(order.Uint32(b)))
	}
	return 0
}

// halfToFloat widens an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalize into the float32 range.
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math.Float32frombits(sign | e<<23 | frac<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
}
