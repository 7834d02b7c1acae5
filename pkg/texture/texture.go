// Package texture reads Texture2D objects and converts their pixel payloads.
//
// Pixel data is either stored inline in the object's "image data" field or
// out-of-band in a resource entry named by m_StreamData. PixelData returns
// the base mip level in its stored format; Decode converts it to NRGBA for
// the block-compressed and raw formats the package understands. Rows are
// stored bottom-up, so callers that want a top-down image pass
// WithFlipVertical.
package texture

import (
	"fmt"
	"image"

	"github.com/EchoTools/hhhFileTools/pkg/asset"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// View is the typed reading of a Texture2D object.
type View struct {
	Name       string
	Width      int
	Height     int
	Format     Format
	MipCount   int
	ImageSize  int // m_CompleteImageSize, all mips
	ImageData  []byte
	StreamData asset.StreamData
}

// FromObject reads a decoded Texture2D.
func FromObject(obj *typetree.Struct) (*View, error) {
	v := &View{MipCount: 1}
	v.Name, _ = obj.String("m_Name")

	w, okW := obj.Int("m_Width")
	h, okH := obj.Int("m_Height")
	if !okW || !okH {
		return nil, fmt.Errorf("texture %q: missing dimensions", v.Name)
	}
	if err := checkDimensions(w, h); err != nil {
		return nil, fmt.Errorf("texture %q: %w", v.Name, err)
	}
	v.Width, v.Height = int(w), int(h)

	f, ok := obj.Int("m_TextureFormat")
	if !ok {
		return nil, fmt.Errorf("texture %q: missing m_TextureFormat", v.Name)
	}
	v.Format = Format(f)

	if n, ok := obj.Int("m_MipCount"); ok {
		v.MipCount = int(n)
	} else if mip, _ := obj.Int("m_MipMap"); mip != 0 {
		v.MipCount = mipLevels(v.Width, v.Height)
	}
	if n, ok := obj.Int("m_CompleteImageSize"); ok {
		v.ImageSize = int(n)
	}

	v.ImageData, _ = obj.Bytes("image data")
	v.StreamData = asset.StreamDataAt(obj, "m_StreamData")
	return v, nil
}

func mipLevels(w, h int) int {
	n := 1
	for w > 1 || h > 1 {
		w, h = max(w/2, 1), max(h/2, 1)
		n++
	}
	return n
}

// Payload returns every stored mip level, fetching out-of-band data through
// res when the inline field is empty.
func (v *View) Payload(res asset.ResourceReader) ([]byte, error) {
	if len(v.ImageData) > 0 || v.StreamData.IsZero() {
		return v.ImageData, nil
	}
	data, err := v.StreamData.Read(res)
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", v.Name, err)
	}
	return data, nil
}

// PixelData returns the base mip level in the stored format.
func (v *View) PixelData(res asset.ResourceReader) ([]byte, error) {
	if !v.Format.Supported() {
		return nil, fmt.Errorf("texture %q: %w: %s", v.Name, stream.ErrUnsupportedTextureFormat, v.Format)
	}
	if err := checkDimensions(int64(v.Width), int64(v.Height)); err != nil {
		return nil, fmt.Errorf("texture %q: %w", v.Name, err)
	}
	data, err := v.Payload(res)
	if err != nil {
		return nil, err
	}
	need := v.Format.BaseLevelSize(v.Width, v.Height)
	if len(data) < need {
		return nil, &stream.Error{
			Op:  "texture " + v.Name,
			Err: fmt.Errorf("%w: %s %dx%d needs %d bytes, have %d", stream.ErrTruncatedInput, v.Format, v.Width, v.Height, need, len(data)),
		}
	}
	return data[:need], nil
}

// Decode fetches and converts the base mip level.
func (v *View) Decode(res asset.ResourceReader, opts ...DecodeOption) (*image.NRGBA, error) {
	data, err := v.PixelData(res)
	if err != nil {
		return nil, err
	}
	return Decode(v.Format, data, v.Width, v.Height, opts...)
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	flip bool
}

// WithFlipVertical returns rows top-down instead of in stored order.
func WithFlipVertical(flip bool) DecodeOption {
	return func(o *decodeOptions) { o.flip = flip }
}

// Decode converts one mip level of the given format into an NRGBA image.
func Decode(format Format, data []byte, width, height int, opts ...DecodeOption) (*image.NRGBA, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !format.Supported() {
		return nil, fmt.Errorf("%w: %s", stream.ErrUnsupportedTextureFormat, format)
	}
	if err := checkDimensions(int64(width), int64(height)); err != nil {
		return nil, err
	}
	if need := format.BaseLevelSize(width, height); len(data) < need {
		return nil, fmt.Errorf("%w: %s %dx%d needs %d bytes, have %d", stream.ErrTruncatedInput, format, width, height, need, len(data))
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	switch format {
	case DXT1:
		decodeBlocks(data, width, height, 8, decodeBC1, img.Pix, img.Stride)
	case DXT5:
		decodeBlocks(data, width, height, 16, decodeBC3, img.Pix, img.Stride)
	case BC4:
		decodeBlocks(data, width, height, 8, decodeBC4, img.Pix, img.Stride)
	case BC5:
		decodeBlocks(data, width, height, 16, decodeBC5, img.Pix, img.Stride)
	default:
		decodePixels(data, width, height, format.pixelBytes(), pixelFuncs[format], img.Pix, img.Stride)
	}

	if o.flip {
		flipRows(img)
	}
	return img, nil
}

func flipRows(img *image.NRGBA) {
	h := img.Rect.Dy()
	row := make([]uint8, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}
