package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/idiotf/entry-video-compress/internal/services"
)

type recordedCall struct {
	name string
	args []string
}

func stubCommands(t *testing.T, mode string) *[]recordedCall {
	t.Helper()
	var mu sync.Mutex
	calls := &[]recordedCall{}
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		mu.Lock()
		*calls = append(*calls, recordedCall{name: name, args: append([]string(nil), args...)})
		mu.Unlock()
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "DECODER_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { commandContext = original })
	return calls
}

func openSession(t *testing.T) *Session {
	t.Helper()
	engine := NewEngine(Options{FFmpegBinary: "ffmpeg-test", FFprobeBinary: "ffprobe-test", WorkDir: t.TempDir()})
	session, err := engine.Open(context.Background(), "clip.MP4", []byte("fake video"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestOpenCopiesInput(t *testing.T) {
	session := openSession(t)
	data, err := os.ReadFile(filepath.Join(session.Dir(), "input.mp4"))
	if err != nil {
		t.Fatalf("read scratch input: %v", err)
	}
	if string(data) != "fake video" {
		t.Fatalf("unexpected scratch content %q", data)
	}

	engine := NewEngine(Options{WorkDir: t.TempDir()})
	if _, err := engine.Open(context.Background(), "x.mp4", nil); !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode failure for empty input, got %v", err)
	}
}

func TestProbeIsCached(t *testing.T) {
	calls := stubCommands(t, "ok")
	session := openSession(t)

	rate, err := session.ProbeFrameRate(context.Background())
	if err != nil {
		t.Fatalf("ProbeFrameRate: %v", err)
	}
	if rate.Num != 30000 || rate.Den != 1001 {
		t.Fatalf("unexpected rate %v", rate)
	}
	duration, err := session.ProbeDuration(context.Background())
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if duration != 2 {
		t.Fatalf("unexpected duration %v", duration)
	}
	if len(*calls) != 1 || (*calls)[0].name != "ffprobe-test" {
		t.Fatalf("expected one ffprobe call, got %+v", *calls)
	}
}

func TestExtractFramesOrdersNumericallyAndReportsProgress(t *testing.T) {
	calls := stubCommands(t, "ok")
	session := openSession(t)

	var progress []float64
	frames, err := session.ExtractFrames(context.Background(), FrameRequest{Width: 4, Height: 3, Rate: 6}, func(f float64) {
		progress = append(progress, f)
	})
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if len(frames) != 12 {
		t.Fatalf("expected 12 frames, got %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Index() != i {
			t.Fatalf("frame %d has index %d", i, frame.Index())
		}
		if filepath.Base(frame.Path()) != strconv.Itoa(i)+".png" {
			t.Fatalf("frame %d maps to %s", i, frame.Path())
		}
	}
	img, err := frames[11].Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Fatalf("unexpected frame size %v", img.Bounds())
	}
	frames[11].Release()
	if _, err := os.Stat(frames[11].Path()); !os.IsNotExist(err) {
		t.Fatal("expected released frame to be removed")
	}

	want := []float64{0, 0.25, 0.5, 1}
	if !slices.Equal(progress, want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}

	var ffmpegArgs []string
	for _, call := range *calls {
		if call.name == "ffmpeg-test" {
			ffmpegArgs = call.args
		}
	}
	joined := strings.Join(ffmpegArgs, " ")
	for _, want := range []string{"-progress pipe:1", "-s 4x3", "-r 6", "-start_number 0"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in ffmpeg args %q", want, joined)
		}
	}
}

func TestExtractFramesWithoutRateKeepsSource(t *testing.T) {
	calls := stubCommands(t, "ok")
	session := openSession(t)
	if _, err := session.ExtractFrames(context.Background(), FrameRequest{Width: 4, Height: 3}, nil); err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	for _, call := range *calls {
		if slices.Contains(call.args, "-r") || slices.Contains(call.args, "-progress") {
			t.Fatalf("unexpected args %v", call.args)
		}
	}
}

func TestExtractFramesFailureCarriesDiagnostic(t *testing.T) {
	stubCommands(t, "fail")
	session := openSession(t)
	_, err := session.ExtractFrames(context.Background(), FrameRequest{Width: 4, Height: 3}, nil)
	var failure *DecodeFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected DecodeFailure, got %v", err)
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatal("expected decode marker")
	}
	if !strings.Contains(failure.Diagnostic, "Invalid data found") {
		t.Fatalf("unexpected diagnostic %q", failure.Diagnostic)
	}
	if services.UserMessage(err) != services.MessageDecode {
		t.Fatalf("unexpected user message %q", services.UserMessage(err))
	}
}

func TestExtractFramesEmptyIsNotAnError(t *testing.T) {
	stubCommands(t, "empty")
	session := openSession(t)
	frames, err := session.ExtractFrames(context.Background(), FrameRequest{Width: 4, Height: 3}, nil)
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
}

func TestExtractAudio(t *testing.T) {
	stubCommands(t, "ok")
	session := openSession(t)
	audio, err := session.ExtractAudio(context.Background(), nil)
	if err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}
	if string(audio) != "ID3fake-mp3" {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestExtractAudioFailureMeansNoAudio(t *testing.T) {
	stubCommands(t, "fail")
	session := openSession(t)
	audio, err := session.ExtractAudio(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if audio != nil {
		t.Fatalf("expected nil audio, got %q", audio)
	}
}

func TestCaptureFrame(t *testing.T) {
	calls := stubCommands(t, "ok")
	session := openSession(t)
	frame, err := session.CaptureFrame(context.Background(), 7, 1.5, 4, 3)
	if err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}
	if frame.Index() != 7 {
		t.Fatalf("unexpected index %d", frame.Index())
	}
	if _, err := frame.Bytes(); err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	args := strings.Join((*calls)[len(*calls)-1].args, " ")
	if !strings.Contains(args, "-ss 1.500000") || !strings.Contains(args, "-frames:v 1") {
		t.Fatalf("unexpected capture args %q", args)
	}

	stubCommands(t, "empty")
	if _, err := session.CaptureFrame(context.Background(), 8, 99, 4, 3); !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode failure for missing frame, got %v", err)
	}
}

func TestCloseRemovesScratchAndRejectsWork(t *testing.T) {
	stubCommands(t, "ok")
	session := openSession(t)
	dir := session.Dir()
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("expected scratch dir removed")
	}
	if _, err := session.ExtractFrames(context.Background(), FrameRequest{Width: 4, Height: 3}, nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestProgressReporterIsMonotonic(t *testing.T) {
	var got []float64
	rep := newProgressReporter(func(f float64) { got = append(got, f) })
	for _, v := range []float64{-1, 0.2, 0.1, 0.2, 0.7, 3} {
		rep.report(v)
	}
	want := []float64{0, 0.2, 0.7, 1}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestScanProgressWithoutDuration(t *testing.T) {
	var got []float64
	rep := newProgressReporter(func(f float64) { got = append(got, f) })
	input := "frame=3\nout_time_us=500000\nprogress=continue\nprogress=end\n"
	if err := scanProgress(strings.NewReader(input), 0, rep); err != nil {
		t.Fatalf("scanProgress: %v", err)
	}
	if !slices.Equal(got, []float64{1}) {
		t.Fatalf("got %v", got)
	}
}

func TestSanitizeExt(t *testing.T) {
	tests := map[string]string{
		"a.MP4":           ".mp4",
		"noext":           ".bin",
		"x.tar.gz":        ".gz",
		"weird.m p4":      ".bin",
		"long.abcdefghij": ".bin",
	}
	for in, want := range tests {
		if got := sanitizeExt(in); got != want {
			t.Fatalf("sanitizeExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func writeTestPNG(path string, w, h int, shade uint8) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	name, args := args[0], args[1:]
	mode := os.Getenv("DECODER_HELPER_MODE")

	if strings.HasPrefix(name, "ffprobe") {
		fmt.Fprint(os.Stdout, `{"streams":[{"index":0,"codec_type":"video","r_frame_rate":"30000/1001","avg_frame_rate":"30000/1001"}],"format":{"duration":"2.0"}}`)
		os.Exit(0)
	}

	if mode == "fail" {
		fmt.Fprintln(os.Stderr, "input.mp4: Invalid data found when processing input")
		os.Exit(1)
	}
	if slices.Contains(args, "-progress") {
		fmt.Fprint(os.Stdout, "out_time_us=500000\nprogress=continue\nout_time_us=1000000\nprogress=continue\nout_time_us=900000\nprogress=end\n")
	}
	out := args[len(args)-1]
	if mode == "empty" {
		os.Exit(0)
	}
	size := argValue(args, "-s")
	var w, h int
	fmt.Sscanf(size, "%dx%d", &w, &h)
	switch {
	case slices.Contains(args, "-vn"):
		_ = os.WriteFile(out, []byte("ID3fake-mp3"), 0o644)
	case slices.Contains(args, "-frames:v"):
		_ = writeTestPNG(out, w, h, 200)
	default:
		for i := range 12 {
			_ = writeTestPNG(strings.Replace(out, "%d", strconv.Itoa(i), 1), w, h, uint8(i*10))
		}
		_ = os.WriteFile(filepath.Join(filepath.Dir(out), "notes.txt"), []byte("x"), 0o644)
	}
	os.Exit(0)
}
