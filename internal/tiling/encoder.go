package tiling

import (
	"image"
	"image/png"
	"io"
)

// Encoder compresses a sealed canvas.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	// Ext is the file extension of the encoded output, without a dot.
	Ext() string
}

// PNGEncoder writes PNG tiles. The standard library encoder is deterministic,
// so identical pixels always produce identical bytes.
type PNGEncoder struct {
	Level png.CompressionLevel
}

func (e PNGEncoder) Encode(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: e.Level}
	return enc.Encode(w, img)
}

func (PNGEncoder) Ext() string { return "png" }
