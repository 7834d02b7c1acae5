package mesh

import (
	"testing"
)

// BenchmarkPackedFloatUnpack measures bit-stream dequantization.
func BenchmarkPackedFloatUnpack(b *testing.B) {
	const items = 64 * 1024
	values := make([]uint32, items)
	for i := range values {
		values[i] = uint32(i*7919) & 0x7ff
	}
	p := PackedFloat{NumItems: items, Range: 2, Start: -1, BitSize: 11, Data: packBits(11, values...)}

	b.SetBytes(int64(len(p.Data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Unpack(0, -1); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkReconstruct measures explicit channel de-interleaving.
func BenchmarkReconstruct(b *testing.B) {
	v, err := FromObject(decodeFixture(b, explicitFixture()), v2020, le)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.Reconstruct(nil); err != nil {
			b.Fatal(err)
		}
	}
}
