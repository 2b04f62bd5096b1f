package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/idiotf/entry-video-compress/internal/deps"
	"github.com/idiotf/entry-video-compress/internal/media/ffprobe"
)

// probeSummary is the JSON shape of `entvc probe --json`.
type probeSummary struct {
	Path            string  `json:"path"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds"`
	FrameRate       string  `json:"frame_rate,omitempty"`
	FramesPerSecond float64 `json:"frames_per_second,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	VideoStreams    int     `json:"video_streams"`
	AudioStreams    int     `json:"audio_streams"`
	SizeBytes       int64   `json:"size_bytes"`
	BitRate         int64   `json:"bit_rate"`
	// EstimatedFrames is duration times the configured or source rate.
	EstimatedFrames int `json:"estimated_frames"`
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe <video>",
		Short: "Show the stream facts a conversion would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			binary := deps.ResolveFFprobe(cfg.FFmpegBinary(), cfg.FFprobeBinary())
			result, err := ffprobe.Inspect(cmd.Context(), binary, args[0])
			if err != nil {
				return fmt.Errorf("probe %s: %w", args[0], err)
			}
			summary := summarizeProbe(args[0], result, cfg.Conversion.FrameRate)
			if asJSON {
				return writeJSON(cmd, summary)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderProbe(summary))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func summarizeProbe(path string, result ffprobe.Result, configuredRate float64) probeSummary {
	summary := probeSummary{
		Path:            path,
		Format:          result.Format.FormatName,
		DurationSeconds: result.DurationSeconds(),
		VideoStreams:    result.VideoStreamCount(),
		AudioStreams:    result.AudioStreamCount(),
		SizeBytes:       result.SizeBytes(),
		BitRate:         result.BitRate(),
	}
	if stream, ok := result.VideoStream(); ok {
		summary.Width = stream.Width
		summary.Height = stream.Height
	}
	if rate, ok := result.FrameRate(); ok {
		summary.FrameRate = rate.String()
		summary.FramesPerSecond = rate.Float()
	}
	rate := configuredRate
	if rate <= 0 {
		rate = summary.FramesPerSecond
	}
	if rate > 0 && summary.DurationSeconds > 0 {
		summary.EstimatedFrames = max(1, int(summary.DurationSeconds*rate+0.5))
	}
	return summary
}

func renderProbe(s probeSummary) string {
	resolution := "-"
	if s.Width > 0 && s.Height > 0 {
		resolution = fmt.Sprintf("%dx%d", s.Width, s.Height)
	}
	frameRate := "-"
	if s.FrameRate != "" {
		frameRate = fmt.Sprintf("%s (%s fps)", s.FrameRate, strconv.FormatFloat(s.FramesPerSecond, 'f', 3, 64))
	}
	format := s.Format
	if strings.TrimSpace(format) == "" {
		format = "-"
	}
	duration := time.Duration(s.DurationSeconds * float64(time.Second)).Round(time.Millisecond)
	rows := [][]string{
		{"Format", format},
		{"Duration", duration.String()},
		{"Frame rate", frameRate},
		{"Resolution", resolution},
		{"Video streams", strconv.Itoa(s.VideoStreams)},
		{"Audio streams", strconv.Itoa(s.AudioStreams)},
		{"Size", humanize.IBytes(uint64(max(s.SizeBytes, 0)))},
		{"Bit rate", humanize.SI(float64(s.BitRate), "bit/s")},
		{"Frames at conversion rate", strconv.Itoa(s.EstimatedFrames)},
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
}
