// Package imaging decodes cover art into pixel buffers.
package imaging

import (
	"bytes"
	"fmt"
	"image"

	// Register the formats cover art ships in.
	_ "image/jpeg"
	_ "image/png"
)

// Decoder turns encoded image bytes into a pixel buffer.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte) (image.Image, error)

// Decode calls f(data).
func (f DecoderFunc) Decode(data []byte) (image.Image, error) { return f(data) }

// Standard decodes every format registered with the image package.
type Standard struct{}

// Decode sniffs the format and decodes the full image.
func (Standard) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%s image has empty bounds %v", format, b)
	}
	return img, nil
}
