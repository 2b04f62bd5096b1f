package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/idiotf/entry-video-compress/internal/archive"
	"github.com/idiotf/entry-video-compress/internal/project"
	"github.com/idiotf/entry-video-compress/internal/services"
	"github.com/idiotf/entry-video-compress/internal/tiling"
)

// Options is the per-job configuration surface plus the collaborators the
// pipeline drives.
type Options struct {
	Width  int
	Height int
	// FrameRate is the sampling rate. Zero keeps the source rate.
	FrameRate float64

	Tiles         int
	GridCols      int
	GridRows      int
	FramesPerTile int

	// DivisionSize splits the archive past this many bytes. Zero keeps one
	// segment.
	DivisionSize int64
	MemorySaving bool
	BoostMode    bool
	Parallelism  int
	Compression  archive.Compression
	// Layout is "auto", "tiled" or "single-object".
	Layout string

	Decoder  Decoder
	Listener Listener
	// Segments receives sealed segments as they are emitted. When nil the
	// segments are returned in Result.Segments.
	Segments archive.SegmentSink

	Encoder tiling.Encoder
	NewHash func() string
	IDs     project.IDSource
	Logger  *slog.Logger
}

type plan struct {
	policy tiling.Policy
	layout project.Layout
}

func (o Options) validate() (plan, error) {
	fail := func(err error) (plan, error) {
		return plan{}, services.Wrap(services.ErrConfiguration, string(StateConfig), "validate options", "", err)
	}
	switch {
	case o.Decoder == nil:
		return fail(errors.New("decoder is required"))
	case o.Width < 1 || o.Height < 1:
		return fail(fmt.Errorf("frame size %dx%d must be positive", o.Width, o.Height))
	case o.FrameRate < 0 || math.IsNaN(o.FrameRate) || math.IsInf(o.FrameRate, 0):
		return fail(fmt.Errorf("frame rate %v must be zero or positive", o.FrameRate))
	case o.Tiles < 0 || o.GridCols < 0 || o.GridRows < 0 || o.FramesPerTile < 0:
		return fail(errors.New("tile geometry must not be negative"))
	case o.GridRows > 0 && o.GridCols == 0:
		return fail(errors.New("grid rows require grid columns"))
	case o.DivisionSize < 0:
		return fail(fmt.Errorf("division size %d must not be negative", o.DivisionSize))
	case o.Parallelism < 0:
		return fail(fmt.Errorf("parallelism %d must not be negative", o.Parallelism))
	}
	policy, err := tiling.PolicyFor(o.MemorySaving, o.BoostMode)
	if err != nil {
		return fail(err)
	}
	layout, err := project.ParseLayout(o.Layout, o.BoostMode)
	if err != nil {
		return fail(err)
	}
	return plan{policy: policy, layout: layout}, nil
}
