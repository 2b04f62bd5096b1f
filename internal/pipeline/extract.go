package pipeline

import (
	"context"
	"errors"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/idiotf/entry-video-compress/internal/decoder"
	"github.com/idiotf/entry-video-compress/internal/logging"
	"github.com/idiotf/entry-video-compress/internal/media/ffprobe"
	"github.com/idiotf/entry-video-compress/internal/tiling"
)

type media struct {
	frames   []tiling.Frame
	audio    []byte
	duration float64
	rate     float64
	fallback bool
}

// extract runs frame extraction, audio extraction and probing together and
// resolves the playback frame rate: the requested rate, else the probed
// source rate, else frames over duration.
func (r *run) extract(ctx context.Context, session Session) (media, error) {
	var (
		m      media
		probed ffprobe.Rational
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		frames, err := session.ExtractFrames(gctx, decoder.FrameRequest{
			Width:  r.opts.Width,
			Height: r.opts.Height,
			Rate:   r.opts.FrameRate,
		}, r.reportProgress)
		if err != nil {
			return err
		}
		m.frames = frames
		return nil
	})
	g.Go(func() error {
		audio, err := session.ExtractAudio(gctx, nil)
		if err != nil {
			return err
		}
		m.audio = audio
		return nil
	})
	g.Go(func() error {
		duration, err := session.ProbeDuration(gctx)
		switch {
		case err == nil:
			m.duration = duration
		case gctx.Err() != nil:
			return gctx.Err()
		default:
			r.logger.Debug("source duration unavailable", logging.Error(err))
		}
		if r.opts.FrameRate > 0 {
			return nil
		}
		rate, err := session.ProbeFrameRate(gctx)
		if err != nil {
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.logger.Debug("source frame rate unavailable", logging.Error(err))
			return nil
		}
		probed = rate
		return nil
	})
	if err := g.Wait(); err != nil {
		return media{}, err
	}

	switch {
	case r.opts.FrameRate > 0:
		m.rate = r.opts.FrameRate
	case probed.Valid():
		m.rate = probed.Float()
	case m.duration > 0 && len(m.frames) > 0:
		m.rate = float64(len(m.frames)) / m.duration
	}

	if len(m.frames) == 0 {
		frames, rate, err := r.captureFallback(ctx, session, m.duration, m.rate)
		if err != nil {
			return media{}, err
		}
		m.frames, m.rate, m.fallback = frames, rate, true
	}
	if m.rate <= 0 || math.IsInf(m.rate, 0) || math.IsNaN(m.rate) {
		return media{}, errors.New("no usable frame rate")
	}

	r.logger.Info("extraction finished",
		logging.Int("frames", len(m.frames)),
		logging.Bool("audio", m.audio != nil),
		logging.Float64("frame_rate", m.rate),
		logging.Float64("duration_seconds", m.duration),
		logging.Duration("elapsed", time.Since(start)),
	)
	return m, nil
}

// captureFallback samples max(1, round(duration*rate)) single frames at
// i/rate and waits for all of them. Without a usable rate it captures one
// frame covering the whole duration.
func (r *run) captureFallback(ctx context.Context, session Session, duration, rate float64) ([]tiling.Frame, float64, error) {
	n := 1
	if rate > 0 && duration > 0 {
		n = max(1, int(math.Round(duration*rate)))
	}
	if rate <= 0 {
		rate = 1
		if duration > 0 {
			rate = 1 / duration
		}
	}
	r.logger.Warn("decoder returned no frames; sampling single frames",
		logging.Event(eventFallback),
		logging.Int("captures", n),
		logging.Float64("frame_rate", rate),
		logging.String(logging.FieldImpact, "playback uses sampled frames"),
	)

	limit := r.opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	frames := make([]tiling.Frame, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range n {
		g.Go(func() error {
			frame, err := session.CaptureFrame(gctx, i, float64(i)/rate, r.opts.Width, r.opts.Height)
			if err != nil {
				return err
			}
			frames[i] = frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return frames, rate, nil
}
