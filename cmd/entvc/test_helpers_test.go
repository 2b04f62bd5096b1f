package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/idiotf/entry-video-compress/internal/config"
	"github.com/idiotf/entry-video-compress/internal/decoder"
	"github.com/idiotf/entry-video-compress/internal/media/ffprobe"
	"github.com/idiotf/entry-video-compress/internal/pipeline"
	"github.com/idiotf/entry-video-compress/internal/testsupport"
	"github.com/idiotf/entry-video-compress/internal/tiling"
)

const (
	testFrameW = 8
	testFrameH = 6
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	outDir     string
	input      string
	decoder    *stubDecoder
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithFrameSize(testFrameW, testFrameH),
	)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	input := filepath.Join(base, "videos", "clip.mp4")
	testsupport.WriteFile(t, input, 4096)

	dec := &stubDecoder{t: t, frames: 20, duration: 2, rate: ffprobe.Rational{Num: 10, Den: 1}, audio: []byte("ID3 stub audio")}
	previous := newDecoder
	newDecoder = func(*config.Config, *slog.Logger) pipeline.Decoder { return dec }
	t.Cleanup(func() { newDecoder = previous })

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		outDir:     cfg.Paths.OutputDir,
		input:      input,
		decoder:    dec,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// stubDecoder serves solid frames without running ffmpeg.
type stubDecoder struct {
	t        *testing.T
	frames   int
	duration float64
	rate     ffprobe.Rational
	audio    []byte
	fail     error

	opened atomic.Int32
}

func (d *stubDecoder) Open(ctx context.Context, name string, video []byte) (pipeline.Session, error) {
	d.opened.Add(1)
	return stubSession{d: d}, nil
}

type stubSession struct {
	d *stubDecoder
}

func (s stubSession) ProbeDuration(context.Context) (float64, error) { return s.d.duration, nil }

func (s stubSession) ProbeFrameRate(context.Context) (ffprobe.Rational, error) { return s.d.rate, nil }

func (s stubSession) ExtractAudio(context.Context, decoder.ProgressFunc) ([]byte, error) {
	return s.d.audio, nil
}

func (s stubSession) ExtractFrames(_ context.Context, _ decoder.FrameRequest, progress decoder.ProgressFunc) ([]tiling.Frame, error) {
	if s.d.fail != nil {
		return nil, s.d.fail
	}
	progress(1)
	frames := make([]tiling.Frame, s.d.frames)
	for i := range frames {
		frames[i] = tiling.MemoryFrame{Ordinal: i, Data: stubPNG(s.d.t, uint8(i*10))}
	}
	return frames, nil
}

func (s stubSession) CaptureFrame(_ context.Context, index int, _ float64, _, _ int) (tiling.Frame, error) {
	return tiling.MemoryFrame{Ordinal: index, Data: stubPNG(s.d.t, uint8(index))}, nil
}

func (s stubSession) Close() error { return nil }

func stubPNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, testFrameW, testFrameH))
	for y := range testFrameH {
		for x := range testFrameW {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 20), B: uint8(y * 30), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return buf.Bytes()
}
