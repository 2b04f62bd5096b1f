// Package config loads, normalizes, and validates entvc configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FFMPEG_BINARY. The Config type centralizes every knob the CLI and the
// conversion pipeline need: output/work/log directories, the conversion
// surface (frame size, frame rate, tiling geometry, archive division size,
// execution policy), external tool locations, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
