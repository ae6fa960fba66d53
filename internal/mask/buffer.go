// Package mask clears near-white studio backgrounds from product thumbnails.
package mask

import (
	"errors"
	"fmt"
)

// Channel offsets inside one interleaved pixel.
const (
	ChannelR = 0
	ChannelG = 1
	ChannelB = 2
	ChannelA = 3

	// BytesPerPixel is the number of interleaved channels per pixel.
	BytesPerPixel = 4
)

// ErrInvalidBuffer is returned when a buffer's dimensions and length disagree.
var ErrInvalidBuffer = errors.New("invalid pixel buffer")

// RGB is the colour part of a pixel; alpha never takes part in comparisons.
type RGB struct {
	R, G, B uint8
}

// White is the only accepted seed colour.
var White = RGB{R: 255, G: 255, B: 255}

// Buffer is a decoded image as row-major, top-left origin RGBA bytes.
type Buffer struct {
	Pix    []byte
	Width  int
	Height int
}

// NewBuffer allocates a zeroed buffer of the given size.
func NewBuffer(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBuffer, width, height)
	}
	return &Buffer{
		Pix:    make([]byte, width*height*BytesPerPixel),
		Width:  width,
		Height: height,
	}, nil
}

// Validate checks that the byte length matches width*height*4.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if want := b.Width * b.Height * BytesPerPixel; len(b.Pix) != want {
		return fmt.Errorf("%w: length %d, want %d for %dx%d", ErrInvalidBuffer, len(b.Pix), want, b.Width, b.Height)
	}
	return nil
}

// Offset returns the index of the R byte of pixel (x, y).
func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * BytesPerPixel
}

// InBounds reports whether (x, y) addresses a pixel of the buffer.
func (b *Buffer) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// RGB returns the colour of pixel (x, y).
func (b *Buffer) RGB(x, y int) RGB {
	i := b.Offset(x, y)
	return RGB{R: b.Pix[i+ChannelR], G: b.Pix[i+ChannelG], B: b.Pix[i+ChannelB]}
}

// Alpha returns the alpha channel of pixel (x, y).
func (b *Buffer) Alpha(x, y int) uint8 {
	return b.Pix[b.Offset(x, y)+ChannelA]
}

// SetAlpha overwrites the alpha channel of pixel (x, y).
func (b *Buffer) SetAlpha(x, y int, a uint8) {
	b.Pix[b.Offset(x, y)+ChannelA] = a
}

// Set writes all four channels of pixel (x, y).
func (b *Buffer) Set(x, y int, c RGB, a uint8) {
	i := b.Offset(x, y)
	b.Pix[i+ChannelR] = c.R
	b.Pix[i+ChannelG] = c.G
	b.Pix[i+ChannelB] = c.B
	b.Pix[i+ChannelA] = a
}

// Clone returns a deep copy so a working copy can be mutated safely.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	return &Buffer{
		Pix:    append([]byte(nil), b.Pix...),
		Width:  b.Width,
		Height: b.Height,
	}
}
