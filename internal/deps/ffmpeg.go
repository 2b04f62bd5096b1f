package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	defaultFFmpeg  = "ffmpeg"
	defaultFFprobe = "ffprobe"
)

// ConversionRequirements lists the binaries a conversion executes.
func ConversionRequirements(ffmpegCommand, ffprobeCommand string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpegCommand,
			Description: "Required for frame and audio extraction",
		},
		{
			Name:        "FFprobe",
			Command:     ResolveFFprobe(ffmpegCommand, ffprobeCommand),
			Description: "Required for duration and frame rate probing",
		},
	}
}

// ResolveFFprobe returns the ffprobe binary to execute.
//
// Static FFmpeg builds ship ffprobe in the same directory as ffmpeg. When
// ffprobe is left at its default name and the configured ffmpeg resolves to
// a directory holding an executable ffprobe, that sibling wins over PATH so
// both tools come from the same build.
func ResolveFFprobe(ffmpegCommand, ffprobeCommand string) string {
	ffprobeCommand = strings.TrimSpace(ffprobeCommand)
	if ffprobeCommand != "" && ffprobeCommand != defaultFFprobe {
		return ffprobeCommand
	}
	ffmpegCommand = strings.TrimSpace(ffmpegCommand)
	if ffmpegCommand != "" && ffmpegCommand != defaultFFmpeg {
		if resolved, err := exec.LookPath(ffmpegCommand); err == nil {
			if candidate, ok := siblingCandidate(resolved, defaultFFprobe); ok {
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					return candidate
				}
			}
		}
	}
	return defaultFFprobe
}

// Version runs "<command> -version" and returns the first output line.
func Version(ctx context.Context, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("command not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, command, "-version").Output() //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", command, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	return "", fmt.Errorf("%s -version: empty output", command)
}

func siblingCandidate(binaryPath, name string) (string, bool) {
	if binaryPath == "" {
		return "", false
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(binaryPath), name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
