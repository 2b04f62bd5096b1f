// Package pipeline runs one conversion end to end.
//
// Run reads the input, opens a decoder session, extracts frames, audio and
// duration concurrently, packs the frames into tiles that stream straight
// into the archive assembler, and finally appends the project manifest.
// Progress and state changes reach the host through a Listener as a closed
// set of event types. When the archive is split, a placeholder manifest is
// written before every split so each segment stays loadable, and the real
// manifest is always the last entry of the final segment.
//
// States advance config -> extracting -> generating -> done. Any failure
// moves to error, and host cancellation moves to aborted. Already emitted
// segments are left for the caller to discard.
package pipeline
