package pipeline

import (
	"context"

	"github.com/idiotf/entry-video-compress/internal/decoder"
	"github.com/idiotf/entry-video-compress/internal/media/ffprobe"
	"github.com/idiotf/entry-video-compress/internal/tiling"
)

// Decoder opens decoding sessions over an input buffer.
type Decoder interface {
	Open(ctx context.Context, name string, video []byte) (Session, error)
}

// Session is the decoding surface used by the pipeline.
type Session interface {
	ProbeDuration(ctx context.Context) (float64, error)
	ProbeFrameRate(ctx context.Context) (ffprobe.Rational, error)
	ExtractAudio(ctx context.Context, progress decoder.ProgressFunc) ([]byte, error)
	ExtractFrames(ctx context.Context, req decoder.FrameRequest, progress decoder.ProgressFunc) ([]tiling.Frame, error)
	CaptureFrame(ctx context.Context, index int, at float64, width, height int) (tiling.Frame, error)
	Close() error
}

// EngineDecoder adapts a decoder.Engine.
func EngineDecoder(engine *decoder.Engine) Decoder {
	return engineDecoder{engine: engine}
}

type engineDecoder struct {
	engine *decoder.Engine
}

func (d engineDecoder) Open(ctx context.Context, name string, video []byte) (Session, error) {
	session, err := d.engine.Open(ctx, name, video)
	if err != nil {
		return nil, err
	}
	return engineSession{Session: session}, nil
}

type engineSession struct {
	*decoder.Session
}

func (s engineSession) ExtractFrames(ctx context.Context, req decoder.FrameRequest, progress decoder.ProgressFunc) ([]tiling.Frame, error) {
	handles, err := s.Session.ExtractFrames(ctx, req, progress)
	if err != nil {
		return nil, err
	}
	frames := make([]tiling.Frame, len(handles))
	for i, handle := range handles {
		frames[i] = handle
	}
	return frames, nil
}

func (s engineSession) CaptureFrame(ctx context.Context, index int, at float64, width, height int) (tiling.Frame, error) {
	handle, err := s.Session.CaptureFrame(ctx, index, at, width, height)
	if err != nil {
		return nil, err
	}
	return handle, nil
}
