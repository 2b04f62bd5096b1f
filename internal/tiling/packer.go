package tiling

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/idiotf/entry-video-compress/internal/hashid"
	"github.com/idiotf/entry-video-compress/internal/logging"
	"github.com/idiotf/entry-video-compress/internal/services"
)

const stageName = "generating"

// Tile is a sealed composite image.
type Tile struct {
	Span
	// Cols is the grid column count shared by every tile in the layout.
	Cols int
	// Hash is the asset identifier used for the archive path.
	Hash   string
	Width  int
	Height int
	Data   []byte
	Ext    string
	Digest [32]byte
}

// DigestHex returns the blake3 digest of the encoded bytes.
func (t Tile) DigestHex() string {
	return hex.EncodeToString(t.Digest[:])
}

// Sink receives sealed tiles in completion order. Calls are serialized.
type Sink func(ctx context.Context, tile Tile) error

// Options configures a Packer.
type Options struct {
	Policy      Policy
	FrameWidth  int
	FrameHeight int
	// Parallelism caps concurrent sealing under PolicyParallel. Zero is unbounded.
	Parallelism int
	Encoder     Encoder
	// NewHash names each tile. Defaults to a process-unique 32 character id.
	NewHash func() string
	Logger  *slog.Logger
}

// Packer seals tiles from decoded frames.
type Packer struct {
	opts   Options
	logger *slog.Logger
}

// NewPacker constructs a Packer, filling defaults.
func NewPacker(opts Options) *Packer {
	if opts.Encoder == nil {
		opts.Encoder = PNGEncoder{}
	}
	if opts.NewHash == nil {
		opts.NewHash = func() string { return hashid.New(hashid.DefaultLength) }
	}
	return &Packer{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "tiling")}
}

// Pack seals every tile in layout and passes each to sink.
func (p *Packer) Pack(ctx context.Context, layout Layout, frames []Frame, sink Sink) error {
	if sink == nil {
		return errors.New("tiling: nil sink")
	}
	if p.opts.FrameWidth < 1 || p.opts.FrameHeight < 1 {
		return fmt.Errorf("tiling: invalid frame size %dx%d", p.opts.FrameWidth, p.opts.FrameHeight)
	}
	if len(frames) != layout.Frames {
		return fmt.Errorf("tiling: layout planned for %d frames, got %d", layout.Frames, len(frames))
	}
	for i, frame := range frames {
		if frame.Index() != i {
			return fmt.Errorf("tiling: frame %d out of order (index %d)", i, frame.Index())
		}
	}

	switch p.opts.Policy {
	case PolicyParallel:
		return p.packParallel(ctx, layout, frames, sink)
	case PolicyMemorySaving:
		return p.packSequential(ctx, layout, frames, sink)
	case PolicyBoost:
		return p.packBoost(ctx, layout, frames, sink)
	default:
		return fmt.Errorf("tiling: unknown policy %v", p.opts.Policy)
	}
}

func (p *Packer) packParallel(ctx context.Context, layout Layout, frames []Frame, sink Sink) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.opts.Parallelism > 0 {
		g.SetLimit(p.opts.Parallelism)
	}
	var sinkMu sync.Mutex
	for _, span := range layout.Tiles {
		g.Go(func() error {
			canvas := image.NewRGBA(image.Rect(0, 0, layout.Cols*p.opts.FrameWidth, span.Rows*p.opts.FrameHeight))
			tile, err := p.seal(gctx, canvas, layout.Cols, span, frames)
			if err != nil {
				return err
			}
			sinkMu.Lock()
			defer sinkMu.Unlock()
			return sink(gctx, tile)
		})
	}
	return g.Wait()
}

func (p *Packer) packSequential(ctx context.Context, layout Layout, frames []Frame, sink Sink) error {
	width := layout.Cols * p.opts.FrameWidth
	canvas := image.NewRGBA(image.Rect(0, 0, width, layout.MaxRows()*p.opts.FrameHeight))
	for _, span := range layout.Tiles {
		clear(canvas.Pix)
		view := canvas.SubImage(image.Rect(0, 0, width, span.Rows*p.opts.FrameHeight)).(*image.RGBA)
		tile, err := p.seal(ctx, view, layout.Cols, span, frames)
		if err != nil {
			return err
		}
		if err := sink(ctx, tile); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) packBoost(ctx context.Context, layout Layout, frames []Frame, sink Sink) error {
	if layout.Cols != 1 || len(layout.Tiles) != len(frames) {
		return fmt.Errorf("tiling: boost needs one frame per tile, got %d tiles for %d frames", len(layout.Tiles), len(frames))
	}
	for _, span := range layout.Tiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := frames[span.FirstFrame]
		data, err := frame.Bytes()
		if err != nil {
			return services.Wrap(services.ErrDecode, stageName, "read frame", fmt.Sprintf("frame %d", span.FirstFrame), err)
		}
		release(frame)
		tile := Tile{
			Span:   span,
			Cols:   1,
			Hash:   p.opts.NewHash(),
			Width:  p.opts.FrameWidth,
			Height: p.opts.FrameHeight,
			Data:   data,
			Ext:    "png",
			Digest: blake3.Sum256(data),
		}
		if err := sink(ctx, tile); err != nil {
			return err
		}
	}
	return nil
}

// seal draws span's frames into canvas and encodes it. canvas must be zeroed.
func (p *Packer) seal(ctx context.Context, canvas *image.RGBA, cols int, span Span, frames []Frame) (Tile, error) {
	start := time.Now()
	w, h := p.opts.FrameWidth, p.opts.FrameHeight
	origin := canvas.Bounds().Min
	for i := range span.FrameCount {
		if err := ctx.Err(); err != nil {
			return Tile{}, err
		}
		frame := frames[span.FirstFrame+i]
		img, err := frame.Decode()
		if err != nil {
			return Tile{}, services.Wrap(services.ErrDecode, stageName, "decode frame", fmt.Sprintf("frame %d", frame.Index()), err)
		}
		col, row := i%cols, i/cols
		cell := image.Rect(col*w, row*h, (col+1)*w, (row+1)*h).Add(origin)
		drawCell(canvas, cell, img)
		release(frame)
	}

	var buf bytes.Buffer
	if err := p.opts.Encoder.Encode(&buf, canvas); err != nil {
		return Tile{}, services.Wrap(services.ErrEncode, stageName, "encode tile", fmt.Sprintf("tile %d", span.Index), err)
	}
	data := buf.Bytes()
	bounds := canvas.Bounds()
	tile := Tile{
		Span:   span,
		Cols:   cols,
		Hash:   p.opts.NewHash(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   data,
		Ext:    p.opts.Encoder.Ext(),
		Digest: blake3.Sum256(data),
	}
	p.logger.Debug("tile sealed",
		logging.Int("tile_index", span.Index),
		logging.Int("frames", span.FrameCount),
		logging.Int("tile_bytes", len(data)),
		logging.Duration("elapsed", time.Since(start)),
		logging.String("digest", tile.DigestHex()),
	)
	return tile, nil
}

func drawCell(dst *image.RGBA, cell image.Rectangle, src image.Image) {
	sb := src.Bounds()
	if sb.Dx() == cell.Dx() && sb.Dy() == cell.Dy() {
		draw.Draw(dst, cell, src, sb.Min, draw.Src)
		return
	}
	draw.ApproxBiLinear.Scale(dst, cell, src, sb, draw.Src, nil)
}
