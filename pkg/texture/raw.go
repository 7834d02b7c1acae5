package texture

import "encoding/binary"

// pixelFunc converts one source pixel into RGBA.
type pixelFunc func(src []byte, dst []uint8)

func nibble(v uint16, shift uint) uint8 { return uint8((v>>shift)&0xf) * 17 }

var pixelFuncs = map[Format]pixelFunc{
	Alpha8: func(s []byte, d []uint8) { d[0], d[1], d[2], d[3] = 255, 255, 255, s[0] },
	R8:     func(s []byte, d []uint8) { d[0], d[1], d[2], d[3] = s[0], 0, 0, 255 },
	R16: func(s []byte, d []uint8) {
		d[0], d[1], d[2], d[3] = uint8(binary.LittleEndian.Uint16(s)>>8), 0, 0, 255
	},
	RG16:   func(s []byte, d []uint8) { d[0], d[1], d[2], d[3] = s[0], s[1], 0, 255 },
	RGB24:  func(s []byte, d []uint8) { d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 255 },
	RGBA32: func(s []byte, d []uint8) { copy(d, s[:4]) },
	ARGB32: func(s []byte, d []uint8) { d[0], d[1], d[2], d[3] = s[1], s[2], s[3], s[0] },
	BGRA32: func(s []byte, d []uint8) { d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3] },
	RGB565: func(s []byte, d []uint8) {
		d[0], d[1], d[2] = expand565(binary.LittleEndian.Uint16(s))
		d[3] = 255
	},
	ARGB4444: func(s []byte, d []uint8) {
		v := binary.LittleEndian.Uint16(s)
		d[0], d[1], d[2], d[3] = nibble(v, 8), nibble(v, 4), nibble(v, 0), nibble(v, 12)
	},
	RGBA4444: func(s []byte, d []uint8) {
		v := binary.LittleEndian.Uint16(s)
		d[0], d[1], d[2], d[3] = nibble(v, 12), nibble(v, 8), nibble(v, 4), nibble(v, 0)
	},
}

func decodePixels(src []byte, width, height, size int, fn pixelFunc, pix []uint8, stride int) {
	for y := range height {
		row := pix[y*stride:]
		for x := range width {
			off := (y*width + x) * size
			fn(src[off:off+size], row[x*4:x*4+4])
		}
	}
}
