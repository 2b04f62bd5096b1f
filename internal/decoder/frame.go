package decoder

import (
	"fmt"
	"image"
	"image/png"
	"os"
)

// FrameHandle refers to one extracted PNG frame on disk. The decoded image
// is never cached.
type FrameHandle struct {
	index int
	path  string
}

// NewFrameHandle wraps an existing PNG file.
func NewFrameHandle(index int, path string) FrameHandle {
	return FrameHandle{index: index, path: path}
}

func (f FrameHandle) Index() int { return f.index }

func (f FrameHandle) Path() string { return f.path }

// Bytes returns the encoded PNG.
func (f FrameHandle) Bytes() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read frame %d: %w", f.index, err)
	}
	return data, nil
}

// Decode reads and decodes the PNG.
func (f FrameHandle) Decode() (image.Image, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open frame %d: %w", f.index, err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", f.index, err)
	}
	return img, nil
}

// Release deletes the frame file once it has been consumed.
func (f FrameHandle) Release() {
	_ = os.Remove(f.path)
}
