package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/idiotf/entry-video-compress/internal/archive"
	"github.com/idiotf/entry-video-compress/internal/hashid"
	"github.com/idiotf/entry-video-compress/internal/logging"
	"github.com/idiotf/entry-video-compress/internal/project"
	"github.com/idiotf/entry-video-compress/internal/services"
	"github.com/idiotf/entry-video-compress/internal/tiling"
)

// Event types logged by the pipeline.
const (
	eventStateChange = "state_change"
	eventTileSealed  = "tile_sealed"
	eventSplit       = "archive_split"
	eventSegment     = "archive_segment"
	eventFallback    = "frame_fallback"
	eventComplete    = "conversion_complete"
)

// Request names one input. Video takes precedence over Path.
type Request struct {
	Name  string
	Path  string
	Video []byte
}

func (r Request) displayName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	if r.Path != "" {
		return filepath.Base(r.Path)
	}
	return "video"
}

// Result summarizes a finished conversion.
type Result struct {
	JobID string
	Name  string
	// Segments holds the emitted segments when Options.Segments is nil.
	Segments     []archive.Segment
	SegmentCount int
	Frames       int
	Tiles        int
	Cols         int
	FrameRate    float64
	Duration     float64
	Layout       project.Layout
	Policy       tiling.Policy
	Audio        bool
	// Fallback is set when frames came from per-timestamp captures.
	Fallback bool
	Elapsed  time.Duration
}

type run struct {
	req    Request
	opts   Options
	name   string
	jobID  string
	base   *slog.Logger
	logger *slog.Logger

	emitMu   sync.Mutex
	state    State
	progress float64
	reported bool

	result Result
}

// Run converts one input into one or more archive segments.
func Run(ctx context.Context, req Request, opts Options) (Result, error) {
	jobID := uuid.NewString()
	ctx = services.WithJobID(ctx, jobID)
	base := logging.NewComponentLogger(opts.Logger, "pipeline")
	r := &run{
		req:   req,
		opts:  opts,
		name:  req.displayName(),
		jobID: jobID,
		base:  base,
	}
	r.result = Result{JobID: jobID, Name: r.name}

	start := time.Now()
	err := r.execute(ctx)
	r.result.Elapsed = time.Since(start)
	if err != nil {
		return r.result, r.fail(ctx, err)
	}
	r.reportProgress(1)
	ctx = r.enter(ctx, StateDone)
	r.logger.Info("conversion complete",
		logging.Event(eventComplete),
		logging.Int("frames", r.result.Frames),
		logging.Int("tiles", r.result.Tiles),
		logging.Int("segments", r.result.SegmentCount),
		logging.Float64("frame_rate", r.result.FrameRate),
		logging.Duration("elapsed", r.result.Elapsed),
	)
	return r.result, nil
}

func (r *run) execute(ctx context.Context) error {
	ctx = r.enter(ctx, StateConfig)
	p, err := r.opts.validate()
	if err != nil {
		return err
	}
	r.result.Layout = p.layout
	r.result.Policy = p.policy

	video, err := r.readInput()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx = r.enter(ctx, StateExtracting)
	session, err := r.opts.Decoder.Open(ctx, r.name, video)
	if err != nil {
		return r.decodeErr(ctx, "open", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("decoder session cleanup failed",
				logging.Error(cerr),
				logging.String(logging.FieldEventType, "decoder_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the scratch directory under work_dir manually"),
			)
		}
	}()

	m, err := r.extract(ctx, session)
	if err != nil {
		return r.decodeErr(ctx, "extract", err)
	}

	ctx = r.enter(ctx, StateGenerating)
	return r.generate(ctx, p, m)
}

func (r *run) readInput() ([]byte, error) {
	if r.req.Video != nil {
		if len(r.req.Video) == 0 {
			return nil, services.Wrap(services.ErrRead, string(StateConfig), "read input", r.name, errors.New("empty input"))
		}
		return r.req.Video, nil
	}
	if r.req.Path == "" {
		return nil, services.Wrap(services.ErrRead, string(StateConfig), "read input", "", errors.New("no input given"))
	}
	data, err := os.ReadFile(r.req.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrRead, string(StateConfig), "read input", r.req.Path, err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrRead, string(StateConfig), "read input", r.req.Path, errors.New("empty input"))
	}
	r.logger.Debug("input read", logging.String("input_path", r.req.Path), logging.Int("input_bytes", len(data)))
	return data, nil
}

// enter records a transition, emits it and returns a context tagged with the
// new stage.
func (r *run) enter(ctx context.Context, state State) context.Context {
	ctx = services.WithStage(ctx, string(state))
	r.logger = logging.WithContext(ctx, r.base)
	r.logger.Debug("state changed", logging.Event(eventStateChange), logging.String("state", string(state)))
	r.emitMu.Lock()
	r.state = state
	r.emitLocked(StateEvent{JobID: r.jobID, State: state})
	r.emitMu.Unlock()
	return ctx
}

func (r *run) fail(ctx context.Context, err error) error {
	r.emitMu.Lock()
	stage := string(r.state)
	r.emitMu.Unlock()

	state := StateError
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, services.ErrCanceled) {
		state = StateAborted
		if !errors.Is(err, services.ErrCanceled) {
			err = services.Wrap(services.ErrCanceled, stage, "", "", err)
		}
	}

	logger := r.logger
	if logger == nil {
		logger = logging.WithContext(ctx, r.base)
	}
	if state == StateAborted {
		logger.Info("conversion aborted", logging.Event(eventStateChange), logging.String("state", string(state)))
	} else {
		logging.ErrorWithContext(logger, "conversion failed", eventStateChange,
			logging.String("state", string(state)),
			logging.String("failed_stage", stage),
			logging.String(logging.FieldErrorHint, services.UserMessage(err)),
			logging.Error(err),
		)
	}
	r.emitMu.Lock()
	r.state = state
	r.emitLocked(StateEvent{JobID: r.jobID, State: state, Err: err})
	r.emitMu.Unlock()
	return err
}

func (r *run) emit(e Event) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.emitLocked(e)
}

func (r *run) emitLocked(e Event) {
	if r.opts.Listener != nil {
		r.opts.Listener.Event(e)
	}
}

// reportProgress forwards a clamped fraction, dropping values that would move
// the overall progress backwards.
func (r *run) reportProgress(fraction float64) {
	fraction = min(max(fraction, 0), 1)
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if r.reported && fraction <= r.progress {
		return
	}
	r.reported = true
	r.progress = fraction
	r.emitLocked(ProgressEvent{JobID: r.jobID, Fraction: fraction})
}

func (r *run) decodeErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, services.ErrDecode) {
		return err
	}
	return services.Wrap(services.ErrDecode, string(StateExtracting), op, "", err)
}

func (r *run) newHash() string {
	if r.opts.NewHash != nil {
		return r.opts.NewHash()
	}
	return hashid.New(hashid.DefaultLength)
}

func (r *run) segment(seg archive.Segment) error {
	if r.opts.Segments != nil {
		if err := r.opts.Segments.Segment(seg); err != nil {
			return fmt.Errorf("store segment %d: %w", seg.Index, err)
		}
	} else {
		r.result.Segments = append(r.result.Segments, seg)
	}
	r.result.SegmentCount++
	r.logger.Debug("archive segment sealed",
		logging.Event(eventSegment),
		logging.Int("segment", seg.Index),
		logging.Int("entries", seg.Entries),
		logging.Int64("segment_bytes", seg.Size),
	)
	r.emit(SegmentEvent{JobID: r.jobID, Segment: seg})
	return nil
}
