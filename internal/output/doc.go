// Package output names and writes finished .ent archives.
//
// A Writer receives archive segments as the pipeline seals them, parks each
// in a hidden temporary file, and only renames them into place on Commit.
// Discard removes the temporaries, so a failed or aborted conversion leaves
// nothing behind. A file lock per output name keeps two conversions of the
// same input from interleaving their segments.
package output
