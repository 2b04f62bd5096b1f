package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/idiotf/entry-video-compress/internal/archive"
	"github.com/idiotf/entry-video-compress/internal/hashid"
	"github.com/idiotf/entry-video-compress/internal/logging"
	"github.com/idiotf/entry-video-compress/internal/project"
	"github.com/idiotf/entry-video-compress/internal/services"
	"github.com/idiotf/entry-video-compress/internal/tiling"
)

// generate packs tiles into the archive and appends the manifest. Audio goes
// first, tiles follow in completion order, the manifest is last.
func (r *run) generate(ctx context.Context, p plan, m media) error {
	n := len(m.frames)
	var (
		layout tiling.Layout
		err    error
	)
	if p.policy == tiling.PolicyBoost {
		layout, err = tiling.PlanBoost(n)
	} else {
		layout, err = tiling.Plan(n, tiling.Request{
			Tiles:         r.opts.Tiles,
			GridCols:      r.opts.GridCols,
			GridRows:      r.opts.GridRows,
			FramesPerTile: r.opts.FramesPerTile,
		})
	}
	if err != nil {
		return services.Wrap(services.ErrConfiguration, string(StateGenerating), "plan tiles", "", err)
	}
	r.result.Frames = n
	r.result.Cols = layout.Cols
	r.result.FrameRate = m.rate
	r.result.Fallback = m.fallback
	r.result.Duration = m.duration
	if r.result.Duration <= 0 {
		r.result.Duration = float64(n) / m.rate
	}
	r.logger.Info("packing tiles",
		logging.String("policy", p.policy.String()),
		logging.Int("frames", n),
		logging.Int("tiles", len(layout.Tiles)),
		logging.Int("grid_cols", layout.Cols),
		logging.Int("grid_rows", layout.MaxRows()),
	)

	placeholder, err := project.MarshalPlaceholder(r.name)
	if err != nil {
		return services.Wrap(services.ErrEncode, string(StateGenerating), "placeholder manifest", "", err)
	}
	w := &archiveWriter{
		run:         r,
		asm:         archive.New(archive.Options{DivisionSize: r.opts.DivisionSize, Compression: r.opts.Compression}, archive.SinkFunc(r.segment)),
		placeholder: placeholder,
	}
	reserve := len(placeholder)
	if w.asm.Splitting() {
		estimate, err := r.estimateManifest(p, layout, m.audio != nil)
		if err != nil {
			return services.Wrap(services.ErrEncode, string(StateGenerating), "estimate manifest", "", err)
		}
		reserve = max(reserve, estimate)
	}

	var audio *project.Audio
	if m.audio != nil {
		hash := r.newHash()
		path, err := archive.AssetPath(hash, archive.KindSound, "mp3")
		if err != nil {
			return services.Wrap(services.ErrEncode, string(StateGenerating), "audio path", "", err)
		}
		if err := w.add(path, m.audio, reserve); err != nil {
			return err
		}
		audio = &project.Audio{Hash: hash, Path: path, Duration: r.result.Duration}
		r.result.Audio = true
	}

	packer := tiling.NewPacker(tiling.Options{
		Policy:      p.policy,
		FrameWidth:  r.opts.Width,
		FrameHeight: r.opts.Height,
		Parallelism: r.opts.Parallelism,
		Encoder:     r.opts.Encoder,
		NewHash:     r.opts.NewHash,
		Logger:      r.logger,
	})
	tiles := make([]project.Tile, 0, len(layout.Tiles))
	err = packer.Pack(ctx, layout, m.frames, func(ctx context.Context, tile tiling.Tile) error {
		path, err := archive.AssetPath(tile.Hash, archive.KindImage, tile.Ext)
		if err != nil {
			return services.Wrap(services.ErrEncode, string(StateGenerating), "tile path", "", err)
		}
		if err := w.add(path, tile.Data, reserve); err != nil {
			return err
		}
		tiles = append(tiles, project.Tile{
			Index:      tile.Index,
			FrameCount: tile.FrameCount,
			Rows:       tile.Rows,
			RowEnd:     tile.RowEnd,
			Hash:       tile.Hash,
			Path:       path,
			Ext:        tile.Ext,
			Width:      tile.Width,
			Height:     tile.Height,
		})
		r.logger.Debug("tile archived",
			logging.Event(eventTileSealed),
			logging.Int("tile", tile.Index),
			logging.Int("frames", tile.FrameCount),
			logging.Int("tile_bytes", len(tile.Data)),
			logging.String("digest", tile.DigestHex()),
		)
		r.emit(TileEvent{
			JobID:  r.jobID,
			Index:  tile.Index,
			Total:  len(layout.Tiles),
			Hash:   tile.Hash,
			Frames: tile.FrameCount,
			Bytes:  len(tile.Data),
			Digest: tile.DigestHex(),
		})
		return nil
	})
	if err != nil {
		return err
	}
	r.result.Tiles = len(tiles)

	proj, err := project.Build(project.Input{
		Name:        r.name,
		Layout:      p.layout,
		FrameWidth:  r.opts.Width,
		FrameHeight: r.opts.Height,
		Cols:        layout.Cols,
		Frames:      n,
		FrameRate:   m.rate,
		Duration:    r.result.Duration,
		Tiles:       tiles,
		Audio:       audio,
		IDs:         r.opts.IDs,
	})
	if err != nil {
		return services.Wrap(services.ErrEncode, string(StateGenerating), "build manifest", "", err)
	}
	manifest, err := project.Marshal(proj)
	if err != nil {
		return services.Wrap(services.ErrEncode, string(StateGenerating), "marshal manifest", "", err)
	}
	// The real manifest closes the segment holding the last asset; it never
	// opens a segment of its own.
	if err := w.asm.Append(archive.ManifestPath, manifest); err != nil {
		return w.archiveErr("append manifest", err)
	}
	if err := w.asm.Close(); err != nil {
		return w.archiveErr("close", err)
	}
	return nil
}

// estimateManifest returns an upper bound on the real manifest size for
// layout. Asset names and ids are stand-ins of the real lengths.
func (r *run) estimateManifest(p plan, layout tiling.Layout, withAudio bool) (int, error) {
	ext := "png"
	if r.opts.Encoder != nil && p.policy != tiling.PolicyBoost {
		ext = r.opts.Encoder.Ext()
	}
	hash := strings.Repeat("0", hashid.DefaultLength)
	tiles := make([]project.Tile, 0, len(layout.Tiles))
	for _, span := range layout.Tiles {
		path, err := archive.AssetPath(hash, archive.KindImage, ext)
		if err != nil {
			return 0, err
		}
		tiles = append(tiles, project.Tile{
			Index:      span.Index,
			FrameCount: span.FrameCount,
			Rows:       span.Rows,
			RowEnd:     span.RowEnd,
			Hash:       hash,
			Path:       path,
			Ext:        ext,
			Width:      r.opts.Width * layout.Cols,
			Height:     r.opts.Height * span.Rows,
		})
	}
	var audio *project.Audio
	if withAudio {
		path, err := archive.AssetPath(hash, archive.KindSound, "mp3")
		if err != nil {
			return 0, err
		}
		audio = &project.Audio{Hash: hash, Path: path, Duration: r.result.Duration}
	}
	stub := strings.Repeat("0", project.IDLength)
	proj, err := project.Build(project.Input{
		Name:        r.name,
		Layout:      p.layout,
		FrameWidth:  r.opts.Width,
		FrameHeight: r.opts.Height,
		Cols:        layout.Cols,
		Frames:      layout.Frames,
		FrameRate:   r.result.FrameRate,
		Duration:    r.result.Duration,
		Tiles:       tiles,
		Audio:       audio,
		IDs:         project.IDFunc(func() string { return stub }),
	})
	if err != nil {
		return 0, err
	}
	data, err := project.Marshal(proj)
	if err != nil {
		return 0, err
	}
	// Numbers can render a few digits longer in the real build.
	return len(data) + len(data)/16 + archive.BlockSize, nil
}

// archiveWriter applies the split policy in front of the assembler.
type archiveWriter struct {
	run         *run
	asm         *archive.Assembler
	placeholder []byte
}

// add appends data at path, first sealing the current segment behind a
// placeholder manifest when the entry plus reserve would not fit.
func (w *archiveWriter) add(path string, data []byte, reserve int) error {
	if w.asm.WouldExceed(len(data), reserve) {
		before := w.asm.BytesWritten()
		if err := w.asm.Append(archive.ManifestPath, w.placeholder); err != nil {
			return w.archiveErr("placeholder", err)
		}
		if err := w.asm.FlushSplit(); err != nil {
			return w.archiveErr("split", err)
		}
		w.run.logger.Info("archive split",
			logging.Event(eventSplit),
			logging.Int("segments", w.asm.Segments()),
			logging.Int64("segment_bytes", before),
			logging.Int("next_entry_bytes", len(data)),
		)
	}
	if err := w.asm.Append(path, data); err != nil {
		return w.archiveErr("append "+path, err)
	}
	return nil
}

func (w *archiveWriter) archiveErr(op string, err error) error {
	if errors.Is(err, services.ErrDuplicateAsset) {
		return fmt.Errorf("archive %s: %w", op, err)
	}
	return services.Wrap(services.ErrEncode, string(StateGenerating), "archive "+op, "", err)
}
