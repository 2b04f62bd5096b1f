package main

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/idiotf/entry-video-compress/internal/media/ffprobe"
	"github.com/idiotf/entry-video-compress/internal/pipeline"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "8x6")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestCheckPassesWithStubbedBinaries(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "ffprobe version stub")
	requireContains(t, out, env.configPath)
}

func TestCheckFailsForMissingBinary(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.FFmpeg.FFmpegBinary = filepath.Join(t.TempDir(), "no-ffmpeg")
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err == nil {
		t.Fatal("expected check failure")
	}
	requireContains(t, out, "FAIL")
}

func TestLogLevelFlagIsValidated(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"--log-level", "loud", "check"}, env.configPath); err == nil {
		t.Fatal("expected invalid log level to fail")
	}
}

func TestSummarizeProbe(t *testing.T) {
	payload := []byte(`{
		"streams": [
			{"index": 0, "codec_type": "video", "width": 1280, "height": 720, "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001"},
			{"index": 1, "codec_type": "audio", "channels": 2}
		],
		"format": {"format_name": "mov,mp4", "duration": "10.0", "size": "2048", "bit_rate": "1638"}
	}`)
	result, err := ffprobe.Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	summary := summarizeProbe("clip.mp4", result, 0)
	if summary.Width != 1280 || summary.Height != 720 {
		t.Fatalf("unexpected resolution %dx%d", summary.Width, summary.Height)
	}
	if summary.FrameRate != "30000/1001" || summary.VideoStreams != 1 || summary.AudioStreams != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.EstimatedFrames != 300 {
		t.Fatalf("expected 300 frames at source rate, got %d", summary.EstimatedFrames)
	}

	summary = summarizeProbe("clip.mp4", result, 12)
	if summary.EstimatedFrames != 120 {
		t.Fatalf("expected 120 frames at configured rate, got %d", summary.EstimatedFrames)
	}
	requireContains(t, renderProbe(summary), "1280x720")
}

func TestStateLabel(t *testing.T) {
	title := cases.Title(language.Und)
	if got := stateLabel(title, pipeline.StateExtracting); got != "Extracting" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := stateLabel(title, pipeline.StateDone); got != "Done" {
		t.Fatalf("unexpected label %q", got)
	}
}
