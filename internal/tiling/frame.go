package tiling

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Frame is one decoded video frame.
type Frame interface {
	Index() int
	// Bytes returns the encoded frame (PNG).
	Bytes() ([]byte, error)
	// Decode returns the frame's pixels. Callers do not retain the result.
	Decode() (image.Image, error)
}

// Releaser is implemented by frames that hold resources (such as a scratch
// file) which can be dropped once the frame is drawn.
type Releaser interface {
	Release()
}

// MemoryFrame is an in-memory PNG frame.
type MemoryFrame struct {
	Ordinal int
	Data    []byte
}

func (f MemoryFrame) Index() int { return f.Ordinal }

func (f MemoryFrame) Bytes() ([]byte, error) { return f.Data, nil }

func (f MemoryFrame) Decode() (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", f.Ordinal, err)
	}
	return img, nil
}

func release(frame Frame) {
	if r, ok := frame.(Releaser); ok {
		r.Release()
	}
}
