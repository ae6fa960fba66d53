// Package thumbnail runs background masking over encoded product images.
package thumbnail

import (
	"fmt"

	"github.com/JakeFAU/gel-catalog/internal/codec"
	"github.com/JakeFAU/gel-catalog/internal/mask"
)

// Masker applies the background fill to a buffer in place.
type Masker interface {
	Mask(buf *mask.Buffer) (mask.Outcome, error)
}

// Encoder serialises a masked buffer.
type Encoder interface {
	Encode(buf *mask.Buffer) ([]byte, error)
	ContentType() string
	Extension() string
}

// Result describes one processed image. Data is nil unless the mask was
// applied; callers keep the original bytes for skipped images.
type Result struct {
	Outcome      mask.Outcome
	Data         []byte
	Width        int
	Height       int
	SourceFormat string
}

// Processor decodes, masks and re-encodes one image at a time.
type Processor struct {
	decode  func([]byte) (*mask.Buffer, string, error)
	masker  Masker
	encoder Encoder
}

// NewProcessor wires a masker and encoder around the default decoder.
func NewProcessor(masker Masker, encoder Encoder) (*Processor, error) {
	if masker == nil {
		return nil, fmt.Errorf("masker is required")
	}
	if encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	return &Processor{
		decode:  codec.Decode,
		masker:  masker,
		encoder: encoder,
	}, nil
}

// ContentType returns the MIME type of masked output.
func (p *Processor) ContentType() string {
	return p.encoder.ContentType()
}

// Extension returns the file extension of masked output.
func (p *Processor) Extension() string {
	return p.encoder.Extension()
}

// Process masks a working copy of the decoded image. The decoded original is
// never mutated, so an encode failure leaves nothing half-written.
func (p *Processor) Process(data []byte) (Result, error) {
	original, format, err := p.decode(data)
	if err != nil {
		return Result{}, err
	}
	result := Result{
		Width:        original.Width,
		Height:       original.Height,
		SourceFormat: format,
	}

	working := original.Clone()
	outcome, err := p.masker.Mask(working)
	if err != nil {
		return result, fmt.Errorf("mask image: %w", err)
	}
	result.Outcome = outcome
	if !outcome.IsApplied() {
		return result, nil
	}

	encoded, err := p.encoder.Encode(working)
	if err != nil {
		return result, err
	}
	result.Data = encoded
	return result, nil
}
