package tiling

import (
	"errors"
	"fmt"
	"math"
)

// DefaultFramesPerTile derives the tile count when nothing else is requested.
const DefaultFramesPerTile = 100

// Request describes the desired geometry. An explicit grid (GridCols and
// GridRows both positive) wins over Tiles; Tiles wins over FramesPerTile.
type Request struct {
	Tiles         int
	GridCols      int
	GridRows      int
	FramesPerTile int
}

// Span is one tile's slice of the frame sequence.
type Span struct {
	Index      int
	FirstFrame int
	FrameCount int
	// Rows is the number of frame rows in this tile.
	Rows int
	// RowStart is the number of rows consumed by earlier tiles.
	RowStart int
	// RowEnd is cumulative: RowStart + Rows.
	RowEnd int
}

// Layout is the complete packing plan for N frames.
type Layout struct {
	Frames    int
	Cols      int
	TotalRows int
	Tiles     []Span
}

// Plan computes the packing layout for n frames.
func Plan(n int, req Request) (Layout, error) {
	if n < 1 {
		return Layout{}, errors.New("tiling plan: no frames")
	}
	if req.Tiles < 0 || req.GridCols < 0 || req.GridRows < 0 {
		return Layout{}, fmt.Errorf("tiling plan: negative geometry %+v", req)
	}

	var cols, tiles int
	switch {
	case req.GridCols > 0 && req.GridRows > 0:
		cols = req.GridCols
		tiles = ceilDiv(ceilDiv(n, cols), req.GridRows)
	default:
		tiles = req.Tiles
		if tiles == 0 {
			perTile := req.FramesPerTile
			if perTile <= 0 {
				perTile = DefaultFramesPerTile
			}
			tiles = ceilDiv(n, perTile)
		}
		cols = req.GridCols
		if cols == 0 {
			cols = int(math.Round(math.Sqrt(float64(n) / float64(tiles))))
		}
	}
	if cols < 1 {
		cols = 1
	}
	totalRows := ceilDiv(n, cols)
	if tiles > totalRows {
		tiles = totalRows
	}
	if tiles < 1 {
		tiles = 1
	}

	layout := Layout{Frames: n, Cols: cols, TotalRows: totalRows, Tiles: make([]Span, 0, tiles)}
	remaining := totalRows
	consumed := 0
	for k := 0; k < tiles; k++ {
		rows := remaining / (tiles - k)
		remaining -= rows
		first := cols * consumed
		last := min(cols*(consumed+rows), n)
		layout.Tiles = append(layout.Tiles, Span{
			Index:      k,
			FirstFrame: first,
			FrameCount: last - first,
			Rows:       rows,
			RowStart:   consumed,
			RowEnd:     consumed + rows,
		})
		consumed += rows
	}
	return layout, nil
}

// PlanBoost lays out one frame per tile.
func PlanBoost(n int) (Layout, error) {
	if n < 1 {
		return Layout{}, errors.New("tiling plan: no frames")
	}
	layout := Layout{Frames: n, Cols: 1, TotalRows: n, Tiles: make([]Span, n)}
	for i := range n {
		layout.Tiles[i] = Span{Index: i, FirstFrame: i, FrameCount: 1, Rows: 1, RowStart: i, RowEnd: i + 1}
	}
	return layout, nil
}

// MaxRows returns the tallest tile's row count.
func (l Layout) MaxRows() int {
	rows := 0
	for _, span := range l.Tiles {
		rows = max(rows, span.Rows)
	}
	return rows
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
