package material

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// Color represents an RGBA color with float32 components, nominally 0.0-1.0.
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
	A float32 `json:"a"`
}

// Vec4 returns the color as a vector for shading math.
func (c Color) Vec4() mgl32.Vec4 { return mgl32.Vec4{c.R, c.G, c.B, c.A} }

// String returns a human-readable color representation.
func (c Color) String() string {
	return fmt.Sprintf("RGBA(%.3f, %.3f, %.3f, %.3f)", c.R, c.G, c.B, c.A)
}

// Hex returns the color as a hex string (#RRGGBBAA).
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X%02X", unorm(c.R), unorm(c.G), unorm(c.B), unorm(c.A))
}

// CSS returns the color as a CSS rgba() string.
func (c Color) CSS() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %.3f)", unorm(c.R), unorm(c.G), unorm(c.B), mgl32.Clamp(c.A, 0, 1))
}

func unorm(v float32) uint8 { return uint8(mgl32.Clamp(v, 0, 1) * 255) }

// colorFromValue reads a ColorRGBA struct with r, g, b, a members.
func colorFromValue(v typetree.Value) (Color, bool) {
	s, ok := v.(*typetree.Struct)
	if !ok {
		return Color{}, false
	}
	var c Color
	for _, ch := range []struct {
		name string
		dst  *float32
	}{{"r", &c.R}, {"g", &c.G}, {"b", &c.B}, {"a", &c.A}} {
		f, ok := s.Float(ch.name)
		if !ok {
			return Color{}, false
		}
		*ch.dst = float32(f)
	}
	return c, true
}
