package texture

import (
	"testing"
)

// BenchmarkDecodeBC1 measures block decoding of a 256x256 DXT1 level.
func BenchmarkDecodeBC1(b *testing.B) {
	const size = 256
	data := make([]byte, DXT1.BaseLevelSize(size, size))
	for i := 0; i < len(data); i += 8 {
		copy(data[i:], bc1Block(uint16(i*31), uint16(i*17), uint32(i)*0x9E3779B9))
	}

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(DXT1, data, size, size); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecodeRGBA32 measures raw pixel conversion with a vertical flip.
func BenchmarkDecodeRGBA32(b *testing.B) {
	const size = 256
	data := make([]byte, RGBA32.BaseLevelSize(size, size))

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(RGBA32, data, size, size, WithFlipVertical(true)); err != nil {
			b.Fatal(err)
		}
	}
}
