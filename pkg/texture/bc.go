package texture

import "encoding/binary"

// block is one decoded 4x4 tile, row-major, RGBA.
type block [16][4]uint8

// expand565 widens an RGB565 colour to 8 bits per channel.
func expand565(c uint16) (r, g, b uint8) {
	r5 := (c >> 11) & 0x1f
	g6 := (c >> 5) & 0x3f
	b5 := c & 0x1f
	return uint8(r5<<3 | r5>>2), uint8(g6<<2 | g6>>4), uint8(b5<<3 | b5>>2)
}

// colorBlock decodes the 8-byte colour half of BC1/BC3. With opaque set the
// four-colour palette is always used, as BC3 requires.
func colorBlock(src []byte, opaque bool, out *block) {
	c0 := binary.LittleEndian.Uint16(src[0:2])
	c1 := binary.LittleEndian.Uint16(src[2:4])
	indices := binary.LittleEndian.Uint32(src[4:8])

	var palette [4][4]uint8
	r0, g0, b0 := expand565(c0)
	r1, g1, b1 := expand565(c1)
	palette[0] = [4]uint8{r0, g0, b0, 255}
	palette[1] = [4]uint8{r1, g1, b1, 255}

	mix := func(a, b uint8, wa, wb, div int) uint8 {
		return uint8((int(a)*wa + int(b)*wb) / div)
	}
	if c0 > c1 || opaque {
		palette[2] = [4]uint8{mix(r0, r1, 2, 1, 3), mix(g0, g1, 2, 1, 3), mix(b0, b1, 2, 1, 3), 255}
		palette[3] = [4]uint8{mix(r0, r1, 1, 2, 3), mix(g0, g1, 1, 2, 3), mix(b0, b1, 1, 2, 3), 255}
	} else {
		palette[2] = [4]uint8{mix(r0, r1, 1, 1, 2), mix(g0, g1, 1, 1, 2), mix(b0, b1, 1, 1, 2), 255}
		palette[3] = [4]uint8{0, 0, 0, 0}
	}

	for i := range 16 {
		out[i] = palette[(indices>>(2*i))&3]
	}
}

// scalarBlock decodes an 8-byte BC4-style channel block into channel ch.
func scalarBlock(src []byte, out *block, ch int) {
	a0, a1 := src[0], src[1]

	var palette [8]uint8
	palette[0], palette[1] = a0, a1
	if a0 > a1 {
		for i := 1; i < 7; i++ {
			palette[i+1] = uint8(((7-i)*int(a0) + i*int(a1)) / 7)
		}
	} else {
		for i := 1; i < 5; i++ {
			palette[i+1] = uint8(((5-i)*int(a0) + i*int(a1)) / 5)
		}
		palette[6] = 0
		palette[7] = 255
	}

	// 48 bits of 3-bit indices
	var bits uint64
	for i := range 6 {
		bits |= uint64(src[2+i]) << (8 * i)
	}
	for i := range 16 {
		out[i][ch] = palette[(bits>>(3*i))&7]
	}
}

func decodeBC1(src []byte, out *block) { colorBlock(src, false, out) }

func decodeBC3(src []byte, out *block) {
	colorBlock(src[8:16], true, out)
	scalarBlock(src[0:8], out, 3)
}

func decodeBC4(src []byte, out *block) {
	scalarBlock(src, out, 0)
	for i := range out {
		out[i][1], out[i][2], out[i][3] = 0, 0, 255
	}
}

func decodeBC5(src []byte, out *block) {
	scalarBlock(src[0:8], out, 0)
	scalarBlock(src[8:16], out, 1)
	for i := range out {
		out[i][2], out[i][3] = 0, 255
	}
}

// decodeBlocks walks 4x4 blocks left to right, top to bottom, clipping tiles
// at the right and bottom edges.
func decodeBlocks(src []byte, width, height, size int, fn func([]byte, *block), pix []uint8, stride int) {
	bw := (width + 3) / 4
	bh := (height + 3) / 4
	var tile block
	for by := range bh {
		for bx := range bw {
			off := (by*bw + bx) * size
			fn(src[off:off+size], &tile)
			for py := range 4 {
				y := by*4 + py
				if y >= height {
					break
				}
				for px := range 4 {
					x := bx*4 + px
					if x >= width {
						break
					}
					copy(pix[y*stride+x*4:], tile[py*4+px][:])
				}
			}
		}
	}
}
