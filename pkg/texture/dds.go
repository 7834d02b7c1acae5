package texture

import (
	"encoding/binary"
	"fmt"

	"github.com/EchoTools/hhhFileTools/pkg/asset"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// DXGI_FORMAT values for the block-compressed formats DDS export handles.
const (
	DXGI_FORMAT_BC1_UNORM  = 71
	DXGI_FORMAT_BC3_UNORM  = 77
	DXGI_FORMAT_BC4_UNORM  = 80
	DXGI_FORMAT_BC5_UNORM  = 83
	DXGI_FORMAT_BC6H_UF16  = 95
	DXGI_FORMAT_BC7_UNORM  = 98
	DXGI_FORMAT_R8G8B8A8   = 28
	DXGI_FORMAT_B8G8R8A8   = 87
	DXGI_FORMAT_R8_UNORM   = 61
	DXGI_FORMAT_R8G8_UNORM = 49
)

// DDS header constants
const (
	DDS_MAGIC                    = 0x20534444 // "DDS "
	DDS_HEADER_SIZE              = 124
	DDS_HEADER_FLAGS_CAPS        = 0x1
	DDS_HEADER_FLAGS_HEIGHT      = 0x2
	DDS_HEADER_FLAGS_WIDTH       = 0x4
	DDS_HEADER_FLAGS_PITCH       = 0x8
	DDS_HEADER_FLAGS_PIXELFORMAT = 0x1000
	DDS_HEADER_FLAGS_MIPMAPCOUNT = 0x20000
	DDS_HEADER_FLAGS_LINEARSIZE  = 0x80000

	DDS_SURFACE_FLAGS_TEXTURE = 0x1000
	DDS_SURFACE_FLAGS_MIPMAP  = 0x400000

	DDS_PIXELFORMAT_SIZE = 32
	DDS_FOURCC           = 0x4
	DX10_FOURCC          = 0x30315844 // "DX10"

	ddsHeaderLen = 4 + DDS_HEADER_SIZE + 20
)

var dxgiFormats = map[Format]uint32{
	DXT1:   DXGI_FORMAT_BC1_UNORM,
	DXT5:   DXGI_FORMAT_BC3_UNORM,
	BC4:    DXGI_FORMAT_BC4_UNORM,
	BC5:    DXGI_FORMAT_BC5_UNORM,
	BC6H:   DXGI_FORMAT_BC6H_UF16,
	BC7:    DXGI_FORMAT_BC7_UNORM,
	RGBA32: DXGI_FORMAT_R8G8B8A8,
	BGRA32: DXGI_FORMAT_B8G8R8A8,
	R8:     DXGI_FORMAT_R8_UNORM,
	RG16:   DXGI_FORMAT_R8G8_UNORM,
}

// DXGIFormat maps a texture format to its DXGI equivalent.
func DXGIFormat(f Format) (uint32, bool) {
	d, ok := dxgiFormats[f]
	return d, ok
}

// DDS wraps the texture's full mip chain in a DDS container with a DX10
// header. Formats that cannot be decoded to pixels, such as BC7, can still be
// exported this way.
func (v *View) DDS(res asset.ResourceReader) ([]byte, error) {
	dxgi, ok := DXGIFormat(v.Format)
	if !ok {
		return nil, fmt.Errorf("texture %q: %w: %s has no DDS mapping", v.Name, stream.ErrUnsupportedTextureFormat, v.Format)
	}
	data, err := v.Payload(res)
	if err != nil {
		return nil, err
	}
	out := make([]byte, ddsHeaderLen+len(data))
	writeDDSHeader(out, uint32(v.Width), uint32(v.Height), uint32(max(v.MipCount, 1)), dxgi, v.Format)
	copy(out[ddsHeaderLen:], data)
	return out, nil
}

func writeDDSHeader(header []byte, width, height, mips, dxgi uint32, f Format) {
	le := binary.LittleEndian
	le.PutUint32(header[0:4], DDS_MAGIC)
	offset := 4

	le.PutUint32(header[offset:], DDS_HEADER_SIZE)
	offset += 4

	flags := uint32(DDS_HEADER_FLAGS_CAPS | DDS_HEADER_FLAGS_HEIGHT | DDS_HEADER_FLAGS_WIDTH | DDS_HEADER_FLAGS_PIXELFORMAT)
	var pitch uint32
	switch b := f.blockBytes(); {
	case b > 0:
		flags |= DDS_HEADER_FLAGS_LINEARSIZE
		pitch = ((width + 3) / 4) * ((height + 3) / 4) * uint32(b)
	case f == BC6H || f == BC7:
		flags |= DDS_HEADER_FLAGS_LINEARSIZE
		pitch = ((width + 3) / 4) * ((height + 3) / 4) * 16
	default:
		flags |= DDS_HEADER_FLAGS_PITCH
		pitch = width * uint32(f.pixelBytes())
	}
	if mips > 1 {
		flags |= DDS_HEADER_FLAGS_MIPMAPCOUNT
	}
	le.PutUint32(header[offset:], flags)
	offset += 4
	le.PutUint32(header[offset:], height)
	offset += 4
	le.PutUint32(header[offset:], width)
	offset += 4
	le.PutUint32(header[offset:], pitch)
	offset += 4
	offset += 4 // depth
	le.PutUint32(header[offset:], mips)
	offset += 4
	offset += 44 // reserved

	le.PutUint32(header[offset:], DDS_PIXELFORMAT_SIZE)
	offset += 4
	le.PutUint32(header[offset:], DDS_FOURCC)
	offset += 4
	le.PutUint32(header[offset:], DX10_FOURCC)
	offset += 4
	offset += 20 // bit count and masks

	caps := uint32(DDS_SURFACE_FLAGS_TEXTURE)
	if mips > 1 {
		caps |= DDS_SURFACE_FLAGS_MIPMAP
	}
	le.PutUint32(header[offset:], caps)
	offset += 4
	offset += 12 // caps2..caps4
	offset += 4  // reserved2

	le.PutUint32(header[offset:], dxgi)
	offset += 4
	le.PutUint32(header[offset:], 3) // TEXTURE2D
	offset += 4
	offset += 4 // misc flag
	le.PutUint32(header[offset:], 1) // array size
}
