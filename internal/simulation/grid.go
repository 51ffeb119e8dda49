package simulation

import (
	"errors"
	"fmt"
)

// ErrShape is returned when grid dimensions do not agree.
var ErrShape = errors.New("grid shape mismatch")

// Grid is a dense row-major (time x asset) matrix.
type Grid struct {
	Rows int
	Cols int
	Data []float64
}

// NewGrid allocates a zero-filled grid.
func NewGrid(rows, cols int) Grid {
	return Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// GridFromColumns builds a grid from per-asset columns of equal length.
func GridFromColumns(cols [][]float64) (Grid, error) {
	if len(cols) == 0 {
		return Grid{}, fmt.Errorf("no columns: %w", ErrShape)
	}
	rows := len(cols[0])
	g := NewGrid(rows, len(cols))
	for j, c := range cols {
		if len(c) != rows {
			return Grid{}, fmt.Errorf("column %d has %d rows, want %d: %w", j, len(c), rows, ErrShape)
		}
		for i, v := range c {
			g.Data[i*g.Cols+j] = v
		}
	}
	return g, nil
}

// At returns the value at (row, col).
func (g Grid) At(row, col int) float64 { return g.Data[row*g.Cols+col] }

// Set stores v at (row, col).
func (g Grid) Set(row, col int, v float64) { g.Data[row*g.Cols+col] = v }

// Col copies one asset column out of the grid.
func (g Grid) Col(col int) []float64 {
	out := make([]float64, g.Rows)
	for i := range out {
		out[i] = g.Data[i*g.Cols+col]
	}
	return out
}

// Valid reports a non-empty grid whose backing slice matches its shape.
func (g Grid) Valid() bool {
	return g.Rows > 0 && g.Cols > 0 && len(g.Data) == g.Rows*g.Cols
}

// SameShape reports whether o is valid and has g's dimensions.
func (g Grid) SameShape(o Grid) bool {
	return o.Valid() && g.Rows == o.Rows && g.Cols == o.Cols
}

// BoolGrid is a dense row-major (time x asset) boolean matrix.
type BoolGrid struct {
	Rows int
	Cols int
	Data []bool
}

// NewBoolGrid allocates an all-false grid.
func NewBoolGrid(rows, cols int) BoolGrid {
	return BoolGrid{Rows: rows, Cols: cols, Data: make([]bool, rows*cols)}
}

// At returns the value at (row, col).
func (g BoolGrid) At(row, col int) bool { return g.Data[row*g.Cols+col] }

// Set stores v at (row, col).
func (g BoolGrid) Set(row, col int, v bool) { g.Data[row*g.Cols+col] = v }

// Count returns the number of true cells.
func (g BoolGrid) Count() int {
	n := 0
	for _, v := range g.Data {
		if v {
			n++
		}
	}
	return n
}

// CountCol returns the number of true cells in one asset column.
func (g BoolGrid) CountCol(col int) int {
	n := 0
	for i := 0; i < g.Rows; i++ {
		if g.Data[i*g.Cols+col] {
			n++
		}
	}
	return n
}

// Matches reports whether the boolean grid has the shape of g.
func (g Grid) Matches(b BoolGrid) bool {
	return b.Rows == g.Rows && b.Cols == g.Cols && len(b.Data) == g.Rows*g.Cols
}
