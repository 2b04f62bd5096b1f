package config

const (
	defaultLogDir        = "~/.local/share/entvc/logs"
	defaultWidth         = 640
	defaultHeight        = 360
	defaultFramesPerTile = 100
	defaultCompression   = CompressionNone
	defaultLayout        = LayoutAuto
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
)

// Archive compression choices.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// Project layout choices. Auto selects single-object for boost mode and
// tiled otherwise.
const (
	LayoutAuto         = "auto"
	LayoutTiled        = "tiled"
	LayoutSingleObject = "single-object"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir(),
			LogDir:  defaultLogDir,
		},
		Conversion: Conversion{
			Width:         defaultWidth,
			Height:        defaultHeight,
			FramesPerTile: defaultFramesPerTile,
			Compression:   defaultCompression,
			Layout:        defaultLayout,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
