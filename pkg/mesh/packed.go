package mesh

import (
	"fmt"

	"github.com/EchoTools/hhhFileTools/pkg/stream"
	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// PackedFloat is a quantized float stream: NumItems values of BitSize bits
// each, rescaled as Start + raw/((1<<BitSize)-1) * Range.
type PackedFloat struct {
	NumItems uint32
	Range    float32
	Start    float32
	BitSize  uint8
	Data     []byte
}

// PackedInt is a bit-packed integer stream.
type PackedInt struct {
	NumItems uint32
	BitSize  uint8
	Data     []byte
}

// bitReader reads little-endian bit fields that are not byte aligned.
type bitReader struct {
	data []byte
	pos  int // in bits
}

func (b *bitReader) read(n uint8) (uint32, error) {
	var x uint64
	for got := uint(0); got < uint(n); {
		idx := b.pos >> 3
		if idx >= len(b.data) {
			return 0, stream.Truncated(int64(idx), 1, 0)
		}
		shift := uint(b.pos & 7)
		take := min(uint(n)-got, 8-shift)
		x |= uint64(b.data[idx]>>shift) << got
		got += take
		b.pos += int(take)
	}
	return uint32(x & (1<<n - 1)), nil
}

func checkRange(what string, numItems uint32, bits uint8, start, count int) (int, error) {
	if bits > 32 {
		return 0, fmt.Errorf("%w: %s bit size %d", stream.ErrUnsupportedMeshEncoding, what, bits)
	}
	if count < 0 {
		count = int(numItems) - start
	}
	if start < 0 || count < 0 || start+count > int(numItems) {
		return 0, fmt.Errorf("%w: %s items [%d,%d) of %d", stream.ErrTruncatedInput, what, start, start+count, numItems)
	}
	return count, nil
}

// Unpack decodes count values starting at item start. A negative count
// reads to the end of the stream.
func (p PackedFloat) Unpack(start, count int) ([]float32, error) {
	count, err := checkRange("packed float", p.NumItems, p.BitSize, start, count)
	if err != nil {
		return nil, err
	}
	out := make([]float32, count)
	if p.BitSize == 0 {
		for i := range out {
			out[i] = p.Start
		}
		return out, nil
	}

	br := bitReader{data: p.Data, pos: start * int(p.BitSize)}
	scale := float64(p.Range) / float64(uint64(1)<<p.BitSize-1)
	for i := range out {
		x, err := br.read(p.BitSize)
		if err != nil {
			return nil, fmt.Errorf("unpack float %d: %w", start+i, err)
		}
		out[i] = float32(float64(p.Start) + float64(x)*scale)
	}
	return out, nil
}

// Unpack decodes count integers starting at item start. A negative count
// reads to the end of the stream.
func (p PackedInt) Unpack(start, count int) ([]uint32, error) {
	count, err := checkRange("packed int", p.NumItems, p.BitSize, start, count)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	if p.BitSize == 0 {
		return out, nil
	}

	br := bitReader{data: p.Data, pos: start * int(p.BitSize)}
	for i := range out {
		if out[i], err = br.read(p.BitSize); err != nil {
			return nil, fmt.Errorf("unpack int %d: %w", start+i, err)
		}
	}
	return out, nil
}

func packedFloatAt(s *typetree.Struct, path string) PackedFloat {
	var p PackedFloat
	v, ok := s.Struct(path)
	if !ok {
		return p
	}
	n, _ := v.Int("m_NumItems")
	r, _ := v.Float("m_Range")
	st, _ := v.Float("m_Start")
	bits, _ := v.Int("m_BitSize")
	p.NumItems, p.Range, p.Start, p.BitSize = uint32(n), float32(r), float32(st), uint8(bits)
	p.Data, _ = v.Bytes("m_Data")
	return p
}

func packedIntAt(s *typetree.Struct, path string) PackedInt {
	var p PackedInt
	v, ok := s.Struct(path)
	if !ok {
		return p
	}
	n, _ := v.Int("m_NumItems")
	bits, _ := v.Int("m_BitSize")
	p.NumItems, p.BitSize = uint32(n), uint8(bits)
	p.Data, _ = v.Bytes("m_Data")
	return p
}
