// Package codec converts between encoded image bytes and mask buffers.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/JakeFAU/gel-catalog/internal/mask"
)

// ErrDecode is returned when image bytes cannot be decoded.
var ErrDecode = errors.New("decode image")

// Decode parses PNG, JPEG, GIF or WebP bytes into a 4-channel buffer and
// reports the detected source format.
func Decode(data []byte) (*mask.Buffer, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecode)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	buf := FromImage(img)
	if err := buf.Validate(); err != nil {
		return nil, format, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return buf, format, nil
}

// FromImage flattens any image into non-premultiplied RGBA bytes with the
// origin moved to (0,0). Sources without an alpha channel come out opaque.
func FromImage(img image.Image) *mask.Buffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if src, ok := img.(*image.NRGBA); ok {
		pix := make([]byte, w*h*mask.BytesPerPixel)
		rowBytes := w * mask.BytesPerPixel
		for y := 0; y < h; y++ {
			start := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pix[y*rowBytes:(y+1)*rowBytes], src.Pix[start:start+rowBytes])
		}
		return &mask.Buffer{Pix: pix, Width: w, Height: h}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &mask.Buffer{Pix: dst.Pix, Width: w, Height: h}
}

// ToImage wraps a buffer as an NRGBA image without copying.
func ToImage(buf *mask.Buffer) *image.NRGBA {
	return &image.NRGBA{
		Pix:    buf.Pix,
		Stride: buf.Width * mask.BytesPerPixel,
		Rect:   image.Rect(0, 0, buf.Width, buf.Height),
	}
}
