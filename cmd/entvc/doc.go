// Package main hosts the entvc CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into conversion
// jobs, ffprobe summaries, dependency checks, and configuration scaffolding.
// It centralizes configuration resolution and logger setup so subcommands can
// focus on user experience instead of wiring.
//
// Keep this package lean: conversion behaviour lives in internal/pipeline and
// the archive naming rules in internal/output. Commands here only translate
// flags into pipeline options and render results.
package main
