// Package decoder drives ffmpeg and ffprobe as the external transcoding
// engine.
//
// An Engine opens a Session per conversion: the submitted video buffer is
// copied into a private scratch directory, and every operation (probing,
// audio extraction, frame extraction, single-frame capture) runs as a child
// process against that copy. Progress is parsed from ffmpeg's
// `-progress pipe:1` stream and reported as a non-decreasing fraction.
// Closing a Session terminates running processes and removes the scratch
// directory.
package decoder
