package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/idiotf/entry-video-compress/internal/services"
)

const (
	// BlockSize is the ustar record size.
	BlockSize = 512
	// TrailerSize is the end-of-archive marker: two zero blocks.
	TrailerSize = 2 * BlockSize
)

// ErrDuplicatePath reports a second append of the same path within a segment.
var ErrDuplicatePath = fmt.Errorf("%w: archive path already written", services.ErrDuplicateAsset)

// ErrClosed is returned when appending after Close.
var ErrClosed = errors.New("archive assembler closed")

// Compression selects the segment encoding.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	default:
		return "none"
	}
}

// ParseCompression maps a config value onto a Compression.
func ParseCompression(value string) (Compression, error) {
	switch value {
	case "", "none":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	default:
		return CompressionNone, fmt.Errorf("unsupported compression %q", value)
	}
}

// Segment is one sealed, self-contained archive blob.
type Segment struct {
	Index int
	Data  []byte
	// Size is the uncompressed container size.
	Size       int64
	Entries    int
	Compressed bool
}

// SegmentSink receives sealed segments in order.
type SegmentSink interface {
	Segment(Segment) error
}

// SinkFunc adapts a function to SegmentSink.
type SinkFunc func(Segment) error

func (f SinkFunc) Segment(seg Segment) error { return f(seg) }

// Options configures an Assembler.
type Options struct {
	// DivisionSize is the segment threshold in bytes. Zero disables splitting.
	DivisionSize int64
	Compression  Compression
	// ModTime is stamped on every header. Zero uses the Unix epoch so
	// identical inputs produce identical archives.
	ModTime time.Time
}

// Assembler is an append-only ustar writer with exact byte accounting.
type Assembler struct {
	mu      sync.Mutex
	opts    Options
	sink    SegmentSink
	buf     bytes.Buffer
	tw      *tar.Writer
	written int64
	entries int
	paths   map[string]struct{}
	index   int
	closed  bool
}

// New returns an Assembler that emits sealed segments to sink.
func New(opts Options, sink SegmentSink) *Assembler {
	if opts.ModTime.IsZero() {
		opts.ModTime = time.Unix(0, 0)
	}
	a := &Assembler{opts: opts, sink: sink}
	a.reset()
	return a
}

func (a *Assembler) reset() {
	a.buf.Reset()
	a.tw = tar.NewWriter(&a.buf)
	a.written = 0
	a.entries = 0
	a.paths = make(map[string]struct{})
}

// EntrySize is the container cost of a payload of n bytes.
func EntrySize(n int) int64 {
	padded := (int64(n) + BlockSize - 1) / BlockSize * BlockSize
	return BlockSize + padded
}

// Append writes one entry to the current segment.
func (a *Assembler) Append(path string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if path == "" {
		return errors.New("archive append: empty path")
	}
	if _, ok := a.paths[path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, path)
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     path,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  a.opts.ModTime,
		Format:   tar.FormatUSTAR,
	}
	if err := a.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("archive header %s: %w", path, err)
	}
	if _, err := a.tw.Write(data); err != nil {
		return fmt.Errorf("archive write %s: %w", path, err)
	}
	if err := a.tw.Flush(); err != nil {
		return fmt.Errorf("archive flush %s: %w", path, err)
	}
	a.paths[path] = struct{}{}
	a.written += EntrySize(len(data))
	a.entries++
	return nil
}

// BytesWritten returns the container bytes in the current segment, headers
// and padding included, excluding the end-of-archive marker.
func (a *Assembler) BytesWritten() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written
}

// Entries returns the number of entries in the current segment.
func (a *Assembler) Entries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries
}

// WouldExceed reports whether appending n payload bytes plus a manifest
// reserve of reserve bytes would push a non-empty segment past the division
// size. An empty segment never needs a split.
func (a *Assembler) WouldExceed(n int, reserve int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opts.DivisionSize <= 0 || a.entries == 0 {
		return false
	}
	next := a.written + EntrySize(n) + EntrySize(reserve) + TrailerSize
	return next > a.opts.DivisionSize
}

// Splitting reports whether a division size is configured.
func (a *Assembler) Splitting() bool {
	return a.opts.DivisionSize > 0
}

// FlushSplit seals the current segment, emits it, and starts a fresh one.
func (a *Assembler) FlushSplit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if err := a.sealLocked(); err != nil {
		return err
	}
	a.reset()
	return nil
}

// Close seals and emits the final segment. Further calls are no-ops.
func (a *Assembler) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.sealLocked()
}

// Segments returns the number of segments emitted so far.
func (a *Assembler) Segments() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index
}

func (a *Assembler) sealLocked() error {
	if err := a.tw.Close(); err != nil {
		return fmt.Errorf("archive seal: %w", err)
	}
	size := int64(a.buf.Len())
	data := append([]byte(nil), a.buf.Bytes()...)
	compressed := false
	if a.opts.Compression == CompressionGzip {
		var err error
		if data, err = gzipBytes(data, a.opts.ModTime); err != nil {
			return fmt.Errorf("archive compress: %w", err)
		}
		compressed = true
	}
	seg := Segment{Index: a.index, Data: data, Size: size, Entries: a.entries, Compressed: compressed}
	a.index++
	if a.sink == nil {
		return nil
	}
	return a.sink.Segment(seg)
}

func gzipBytes(data []byte, modTime time.Time) ([]byte, error) {
	var out bytes.Buffer
	zw, err := gzip.NewWriterLevel(&out, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	zw.ModTime = modTime
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
