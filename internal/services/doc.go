// Package services defines shared utilities consumed by the conversion
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, pipeline stages, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (read, decode, encode, duplicate asset) without losing the cause.
//   - UserMessage, which turns any failure into the short localized text shown
//     to people running a conversion, keeping engine diagnostics in the logs.
//
// Use these helpers when wiring new pipeline steps so error handling and
// observability stay uniform.
package services
