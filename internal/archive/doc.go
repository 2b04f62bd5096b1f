// Package archive assembles the .ent container: a ustar tape archive of
// content-addressed assets plus the project manifest.
//
// An Assembler accumulates entries into the current segment and tracks the
// exact number of container bytes written (512-byte headers plus payload
// padded to 512). Splitting is caller driven: before an asset that would push
// the segment past the division size, the caller appends a placeholder
// manifest and calls FlushSplit, which seals the segment (adding the 1024-byte
// end-of-archive marker) and hands it to the SegmentSink. Every emitted
// segment is an independently readable tar stream, optionally gzip
// compressed.
package archive
