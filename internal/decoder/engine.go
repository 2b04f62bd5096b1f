package decoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/idiotf/entry-video-compress/internal/logging"
	"github.com/idiotf/entry-video-compress/internal/media/ffprobe"
)

var commandContext = exec.CommandContext

const stderrTailBytes = 4096

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = errors.New("decoder session closed")

// Options configures the engine.
type Options struct {
	FFmpegBinary  string
	FFprobeBinary string
	// WorkDir hosts per-session scratch directories. Empty uses os.TempDir.
	WorkDir string
	Threads int
	Logger  *slog.Logger
}

// Engine launches ffmpeg sessions.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// NewEngine returns an Engine using opts.
func NewEngine(opts Options) *Engine {
	if strings.TrimSpace(opts.FFmpegBinary) == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(opts.FFprobeBinary) == "" {
		opts.FFprobeBinary = "ffprobe"
	}
	return &Engine{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "decoder")}
}

// Session is one opened input. All methods are safe for concurrent use.
type Session struct {
	engine *Engine
	dir    string
	input  string
	logger *slog.Logger

	mu     sync.Mutex
	procs  map[*exec.Cmd]struct{}
	closed bool

	probeMu sync.Mutex
	probed  *ffprobe.Result
}

// Open copies video into a fresh scratch directory and returns a Session.
func (e *Engine) Open(ctx context.Context, name string, video []byte) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(video) == 0 {
		return nil, failure("open", errors.New("empty input"), "")
	}
	base := e.opts.WorkDir
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, failure("open", fmt.Errorf("create work dir: %w", err), "")
		}
	}
	dir, err := os.MkdirTemp(base, "entvc-*")
	if err != nil {
		return nil, failure("open", fmt.Errorf("create scratch dir: %w", err), "")
	}
	input := filepath.Join(dir, "input"+sanitizeExt(name))
	if err := os.WriteFile(input, video, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, failure("open", fmt.Errorf("write input: %w", err), "")
	}
	s := &Session{
		engine: e,
		dir:    dir,
		input:  input,
		logger: logging.WithContext(ctx, e.logger),
		procs:  make(map[*exec.Cmd]struct{}),
	}
	s.logger.Debug("decoder session opened", logging.String("work_dir", dir), logging.Int64("input_bytes", int64(len(video))))
	return s, nil
}

func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 8 {
		return ".bin"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".bin"
		}
	}
	return ext
}

// Dir returns the session scratch directory.
func (s *Session) Dir() string { return s.dir }

// Probe runs ffprobe once and caches the result.
func (s *Session) Probe(ctx context.Context) (ffprobe.Result, error) {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	if s.probed != nil {
		return *s.probed, nil
	}
	stderr := newTailBuffer(stderrTailBytes)
	cmd := commandContext(ctx, s.engine.opts.FFprobeBinary,
		"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", s.input)
	cmd.Stderr = stderr
	output, err := s.output(ctx, cmd)
	if err != nil {
		return ffprobe.Result{}, failure("probe", err, stderr.String())
	}
	result, err := ffprobe.Parse(output)
	if err != nil {
		return ffprobe.Result{}, failure("probe", err, "")
	}
	s.probed = &result
	return result, nil
}

// ProbeDuration returns the media duration in seconds.
func (s *Session) ProbeDuration(ctx context.Context) (float64, error) {
	result, err := s.Probe(ctx)
	if err != nil {
		return 0, err
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		return 0, failure("probe duration", errors.New("duration unavailable"), "")
	}
	return duration, nil
}

// ProbeFrameRate returns the source frame rate.
func (s *Session) ProbeFrameRate(ctx context.Context) (ffprobe.Rational, error) {
	result, err := s.Probe(ctx)
	if err != nil {
		return ffprobe.Rational{}, err
	}
	rate, ok := result.FrameRate()
	if !ok {
		return ffprobe.Rational{}, failure("probe frame rate", errors.New("no usable frame rate"), "")
	}
	return rate, nil
}

// ExtractAudio re-encodes the audio track to MP3. A missing or undecodable
// audio track yields nil bytes and no error.
func (s *Session) ExtractAudio(ctx context.Context, progress ProgressFunc) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := filepath.Join(s.dir, "audio.mp3")
	args := s.baseArgs()
	args = append(args, "-i", s.input, "-vn", "-sn", "-dn", "-c:a", "libmp3lame", "-q:a", "4", "-f", "mp3", out)
	diag, err := s.runWithProgress(ctx, args, progress)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrSessionClosed) {
			return nil, err
		}
		s.logger.Debug("audio extraction produced no track", logging.Error(err), logging.String("diagnostic", diag))
		return nil, nil
	}
	data, err := os.ReadFile(out)
	if err != nil || len(data) == 0 {
		return nil, nil
	}
	_ = os.Remove(out)
	return data, nil
}

// FrameRequest describes the frames to extract.
type FrameRequest struct {
	Width  int
	Height int
	// Rate is the sampling frame rate. Zero keeps the source rate.
	Rate float64
}

// ExtractFrames decodes the video into PNG frames of the requested size,
// returned in presentation order. An empty slice is a valid result.
func (s *Session) ExtractFrames(ctx context.Context, req FrameRequest, progress ProgressFunc) ([]FrameHandle, error) {
	if req.Width < 1 || req.Height < 1 {
		return nil, failure("extract frames", fmt.Errorf("invalid size %dx%d", req.Width, req.Height), "")
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.dir, "f")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, failure("extract frames", err, "")
	}
	args := s.baseArgs()
	args = append(args, "-i", s.input, "-an", "-sn", "-dn", "-s", fmt.Sprintf("%dx%d", req.Width, req.Height))
	if req.Rate > 0 {
		args = append(args, "-r", strconv.FormatFloat(req.Rate, 'f', -1, 64))
	}
	args = append(args, "-f", "image2", "-start_number", "0", filepath.Join(dir, "%d.png"))

	start := time.Now()
	diag, err := s.runWithProgress(ctx, args, progress)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, failure("extract frames", err, diag)
	}
	frames, err := collectFrames(dir)
	if err != nil {
		return nil, failure("extract frames", err, "")
	}
	s.logger.Debug("frames extracted",
		logging.Int("frames", len(frames)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return frames, nil
}

// CaptureFrame grabs the single frame shown at the given timestamp. index
// becomes the returned handle's ordinal.
func (s *Session) CaptureFrame(ctx context.Context, index int, at float64, width, height int) (FrameHandle, error) {
	if err := s.checkOpen(); err != nil {
		return FrameHandle{}, err
	}
	dir := filepath.Join(s.dir, "c")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FrameHandle{}, failure("capture frame", err, "")
	}
	out := filepath.Join(dir, strconv.Itoa(index)+".png")
	args := s.baseArgs()
	args = append(args,
		"-ss", strconv.FormatFloat(max(at, 0), 'f', 6, 64),
		"-i", s.input,
		"-an", "-sn", "-dn",
		"-frames:v", "1",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-f", "image2", "-update", "1", out,
	)
	diag, err := s.runWithProgress(ctx, args, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return FrameHandle{}, ctxErr
		}
		return FrameHandle{}, failure("capture frame", err, diag)
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return FrameHandle{}, failure("capture frame", fmt.Errorf("no frame at %.3fs", at), diag)
	}
	return FrameHandle{index: index, path: out}, nil
}

// Close terminates running engine processes and removes the scratch
// directory. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for cmd := range s.procs {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	s.mu.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) baseArgs() []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-v", "error"}
	if s.engine.opts.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(s.engine.opts.Threads))
	}
	return args
}

// runWithProgress runs ffmpeg, streaming -progress output into progress. It
// returns the stderr tail for diagnostics.
func (s *Session) runWithProgress(ctx context.Context, args []string, progress ProgressFunc) (string, error) {
	var duration float64
	if progress != nil {
		if d, err := s.ProbeDuration(ctx); err == nil {
			duration = d
		}
		args = append([]string{"-progress", "pipe:1", "-nostats"}, args...)
	}
	stderr := newTailBuffer(stderrTailBytes)
	cmd := commandContext(ctx, s.engine.opts.FFmpegBinary, args...) //nolint:gosec
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	if err := s.start(cmd); err != nil {
		return "", err
	}
	defer s.forget(cmd)

	rep := newProgressReporter(progress)
	if progress != nil {
		rep.report(0)
	}
	scanErr := scanProgress(stdout, duration, rep)
	if err := cmd.Wait(); err != nil {
		return stderr.String(), err
	}
	if scanErr != nil {
		return stderr.String(), fmt.Errorf("read progress: %w", scanErr)
	}
	return stderr.String(), nil
}

func (s *Session) output(ctx context.Context, cmd *exec.Cmd) ([]byte, error) {
	var out strings.Builder
	cmd.Stdout = &out
	if err := s.start(cmd); err != nil {
		return nil, err
	}
	defer s.forget(cmd)
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return []byte(out.String()), nil
}

func (s *Session) start(cmd *exec.Cmd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", filepath.Base(cmd.Path), err)
	}
	s.procs[cmd] = struct{}{}
	return nil
}

func (s *Session) forget(cmd *exec.Cmd) {
	s.mu.Lock()
	delete(s.procs, cmd)
	s.mu.Unlock()
}

// collectFrames lists <n>.png files in numeric order and renumbers them from
// zero.
func collectFrames(dir string) ([]FrameHandle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type numbered struct {
		n    int
		path string
	}
	found := make([]numbered, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stem, ok := strings.CutSuffix(entry.Name(), ".png")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(stem)
		if err != nil {
			continue
		}
		found = append(found, numbered{n: n, path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	frames := make([]FrameHandle, len(found))
	for i, f := range found {
		frames[i] = FrameHandle{index: i, path: f.path}
	}
	return frames, nil
}
