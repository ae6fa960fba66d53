package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/JakeFAU/gel-catalog/internal/mask"
)

// Format names an encoded image format.
type Format string

// Known formats.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
)

var (
	// ErrFormatNoAlpha is a configuration error: masked output needs an alpha channel.
	ErrFormatNoAlpha = errors.New("output format has no alpha channel")
	// ErrUnsupportedFormat is returned for formats with no available encoder.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// ParseFormat normalises user-supplied format names such as "jpg" or "PNG".
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "gif":
		return FormatGIF, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// SupportsAlpha reports whether the format can carry a full 8-bit alpha channel.
func (f Format) SupportsAlpha() bool {
	return f == FormatPNG || f == FormatWebP
}

// EncodeError wraps any failure to serialise a masked buffer.
type EncodeError struct {
	Format Format
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Encoder serialises buffers into an alpha-preserving format.
type Encoder struct {
	format Format
	png    png.Encoder
}

// NewEncoder validates the output format. Formats that would drop alpha are
// rejected instead of silently downgraded.
func NewEncoder(format Format, level png.CompressionLevel) (*Encoder, error) {
	if !format.SupportsAlpha() {
		return nil, fmt.Errorf("%w: %s", ErrFormatNoAlpha, format)
	}
	if format != FormatPNG {
		return nil, fmt.Errorf("%w: no %s encoder available", ErrUnsupportedFormat, format)
	}
	return &Encoder{
		format: format,
		png:    png.Encoder{CompressionLevel: level},
	}, nil
}

// Format returns the configured output format.
func (e *Encoder) Format() Format {
	return e.format
}

// ContentType returns the MIME type of encoded output.
func (e *Encoder) ContentType() string {
	return "image/" + string(e.format)
}

// Extension returns the file extension, including the dot.
func (e *Encoder) Extension() string {
	return "." + string(e.format)
}

// Encode serialises buf. The buffer is read but never modified.
func (e *Encoder) Encode(buf *mask.Buffer) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, &EncodeError{Format: e.format, Err: err}
	}
	var out bytes.Buffer
	if err := e.png.Encode(&out, ToImage(buf)); err != nil {
		return nil, &EncodeError{Format: e.format, Err: err}
	}
	return out.Bytes(), nil
}
