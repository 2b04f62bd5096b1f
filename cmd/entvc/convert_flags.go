package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/idiotf/entry-video-compress/internal/archive"
	"github.com/idiotf/entry-video-compress/internal/config"
	"github.com/idiotf/entry-video-compress/internal/pipeline"
)

// conversionFlags overrides the [conversion] section for one invocation.
// Only flags the user set replace config values.
type conversionFlags struct {
	width         int
	height        int
	frameRate     float64
	tiles         int
	gridCols      int
	gridRows      int
	framesPerTile int
	divisionSize  string
	memorySaving  bool
	boost         bool
	parallelism   int
	compress      string
	layout        string
	output        string
}

func (f *conversionFlags) bind(fs *pflag.FlagSet) {
	fs.IntVar(&f.width, "width", 0, "Frame width in pixels")
	fs.IntVar(&f.height, "height", 0, "Frame height in pixels")
	fs.Float64Var(&f.frameRate, "fps", 0, "Sampling frame rate (0 keeps the source rate)")
	fs.IntVar(&f.tiles, "tiles", 0, "Number of tiles to pack frames into")
	fs.IntVar(&f.gridCols, "grid-cols", 0, "Frames per tile row")
	fs.IntVar(&f.gridRows, "grid-rows", 0, "Frame rows per tile")
	fs.IntVar(&f.framesPerTile, "frames-per-tile", 0, "Frames per tile when tiles is unset")
	fs.StringVar(&f.divisionSize, "division-size", "", "Split archives past this size (e.g. 50MiB, 0 disables)")
	fs.BoolVar(&f.memorySaving, "memory-saving", false, "Seal tiles one at a time on a reused canvas")
	fs.BoolVar(&f.boost, "boost", false, "Store each frame as its own image")
	fs.IntVar(&f.parallelism, "parallelism", 0, "Maximum concurrent tile or capture workers (0 uses all CPUs)")
	fs.StringVar(&f.compress, "compress", "", "Archive compression (none, gzip)")
	fs.Lookup("compress").NoOptDefVal = config.CompressionGzip
	fs.StringVar(&f.layout, "layout", "", "Sprite layout (auto, tiled, single-object)")
	fs.StringVarP(&f.output, "output", "o", "", "Directory for written archives (default: next to each input)")
}

// apply copies the flags the user set over cfg and revalidates it.
func (f *conversionFlags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	conv := &cfg.Conversion
	if fs.Changed("width") {
		conv.Width = f.width
	}
	if fs.Changed("height") {
		conv.Height = f.height
	}
	if fs.Changed("fps") {
		conv.FrameRate = f.frameRate
	}
	if fs.Changed("tiles") {
		conv.Tiles = f.tiles
	}
	if fs.Changed("grid-cols") {
		conv.GridCols = f.gridCols
	}
	if fs.Changed("grid-rows") {
		conv.GridRows = f.gridRows
	}
	if fs.Changed("frames-per-tile") {
		conv.FramesPerTile = f.framesPerTile
	}
	if fs.Changed("division-size") {
		conv.DivisionSize = strings.TrimSpace(f.divisionSize)
	}
	if fs.Changed("memory-saving") {
		conv.MemorySaving = f.memorySaving
	}
	if fs.Changed("boost") {
		conv.BoostMode = f.boost
	}
	if fs.Changed("parallelism") {
		conv.Parallelism = f.parallelism
	}
	if fs.Changed("compress") {
		conv.Compression = strings.ToLower(strings.TrimSpace(f.compress))
	}
	if fs.Changed("layout") {
		conv.Layout = strings.ToLower(strings.TrimSpace(f.layout))
	}
	if fs.Changed("output") {
		expanded, err := config.ExpandPath(strings.TrimSpace(f.output))
		if err != nil {
			return fmt.Errorf("--output: %w", err)
		}
		cfg.Paths.OutputDir = expanded
	}
	return cfg.Validate()
}

// jobOptions projects the conversion section onto pipeline options. The
// caller supplies the decoder, listener and segment sink.
func jobOptions(cfg *config.Config) (pipeline.Options, error) {
	division, err := cfg.DivisionSizeBytes()
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("conversion.division_size: %w", err)
	}
	compression, err := archive.ParseCompression(cfg.Conversion.Compression)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("conversion.compression: %w", err)
	}
	conv := cfg.Conversion
	return pipeline.Options{
		Width:         conv.Width,
		Height:        conv.Height,
		FrameRate:     conv.FrameRate,
		Tiles:         conv.Tiles,
		GridCols:      conv.GridCols,
		GridRows:      conv.GridRows,
		FramesPerTile: conv.FramesPerTile,
		DivisionSize:  division,
		MemorySaving:  conv.MemorySaving,
		BoostMode:     conv.BoostMode,
		Parallelism:   conv.Parallelism,
		Compression:   compression,
		Layout:        conv.Layout,
	}, nil
}
