// Package project synthesizes the Entry project manifest (temp/project.json)
// that plays a packed video back inside the Entry runtime.
//
// Build maps the packing outcome (tiles, grid columns, frame count, frame
// rate, duration, optional audio) to a Project. In the tiled layout every
// tile becomes a hidden sprite whose script derives the current frame from
// the project timer and, while the frame belongs to that tile, moves the
// sprite so the matching grid cell covers the stage. The single-object
// layout keeps one sprite whose costumes are the frames themselves. A
// coordinator sprite starts the timer and the audio once.
//
// Build is pure apart from identifier allocation, which goes through an
// IDSource so tests can make manifests byte-for-byte reproducible.
package project
