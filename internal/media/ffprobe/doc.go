// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//   - Rational: exact frame rates such as 30000/1001
//
// Inspect executes ffprobe and returns a parsed Result. Helper methods on
// Result expose the first video stream, its frame rate (r_frame_rate, then
// avg_frame_rate), and container duration.
package ffprobe
