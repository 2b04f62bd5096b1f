// Package preflight provides readiness checks for the external binaries and
// filesystem paths entvc depends on.
//
// The convert command calls RunAll before starting the first job so a
// missing ffmpeg or an unwritable scratch directory fails fast instead of
// after the input has been read. The check command renders the same results
// as a table.
package preflight
