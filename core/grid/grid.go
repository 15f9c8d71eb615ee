// Package grid holds the walkability raster couriers move on and the
// generator that builds connected maps.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kilianp07/gridcourier/core/model"
)

// Cell is the state of one grid square.
type Cell uint8

const (
	Walkable Cell = 0
	Blocked  Cell = 1
)

var (
	// ErrInvalidRaster is returned when a raster is not square.
	ErrInvalidRaster = errors.New("raster must be size x size")
	// ErrInvalidSize is returned for non-positive sizes.
	ErrInvalidSize = errors.New("grid size must be positive")
	// ErrInvalidWallProbability is returned for probabilities outside [0,1].
	ErrInvalidWallProbability = errors.New("wall probability must be within [0,1]")
)

// offsets in neighbor order: up, right, down, left.
var offsets = [4][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// Map is an N x N walkability raster indexed as cells[y][x].
// It is read-only once constructed.
type Map struct {
	size  int
	cells [][]Cell
}

// New copies raster into a Map.
func New(raster [][]Cell) (*Map, error) {
	n := len(raster)
	if n == 0 {
		return nil, ErrInvalidSize
	}
	cells := make([][]Cell, n)
	for y, row := range raster {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidRaster, y, len(row), n)
		}
		cells[y] = append([]Cell(nil), row...)
	}
	return &Map{size: n, cells: cells}, nil
}

func blank(size int, c Cell) *Map {
	cells := make([][]Cell, size)
	for y := range cells {
		cells[y] = make([]Cell, size)
		if c != Walkable {
			for x := range cells[y] {
				cells[y][x] = c
			}
		}
	}
	return &Map{size: size, cells: cells}
}

// Size is the side length of the grid.
func (m *Map) Size() int { return m.size }

func (m *Map) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.size && y < m.size
}

// IsWalkable reports whether (x,y) is inside the grid and walkable.
func (m *Map) IsWalkable(x, y int) bool {
	return m.inBounds(x, y) && m.cells[y][x] == Walkable
}

// IsWalkableAt is IsWalkable for a Location.
func (m *Map) IsWalkableAt(l model.Location) bool { return m.IsWalkable(l.X, l.Y) }

// Neighbors returns the walkable orthogonal neighbors of (x,y).
func (m *Map) Neighbors(x, y int) []model.Location {
	out := make([]model.Location, 0, 4)
	for _, o := range offsets {
		nx, ny := x+o[0], y+o[1]
		if m.IsWalkable(nx, ny) {
			out = append(out, model.Location{X: nx, Y: ny})
		}
	}
	return out
}

// WalkableCells lists walkable cells in row-major order.
func (m *Map) WalkableCells() []model.Location {
	var out []model.Location
	for y, row := range m.cells {
		for x, c := range row {
			if c == Walkable {
				out = append(out, model.Location{X: x, Y: y})
			}
		}
	}
	return out
}

// CountWalkable returns the number of walkable cells.
func (m *Map) CountWalkable() int {
	n := 0
	for _, row := range m.cells {
		for _, c := range row {
			if c == Walkable {
				n++
			}
		}
	}
	return n
}

// Raster returns a copy of the cells.
func (m *Map) Raster() [][]Cell {
	out := make([][]Cell, m.size)
	for y, row := range m.cells {
		out[y] = append([]Cell(nil), row...)
	}
	return out
}

type mapJSON struct {
	Size          int      `json:"size"`
	WalkableCells int      `json:"walkableCells"`
	Grid          [][]Cell `json:"grid"`
}

// MarshalJSON encodes the map as {size, walkableCells, grid}.
func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(mapJSON{Size: m.size, WalkableCells: m.CountWalkable(), Grid: m.cells})
}

// UnmarshalJSON decodes and validates a persisted map.
func (m *Map) UnmarshalJSON(b []byte) error {
	var raw mapJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	loaded, err := New(raw.Grid)
	if err != nil {
		return err
	}
	if raw.Size != 0 && raw.Size != loaded.size {
		return fmt.Errorf("%w: declared size %d, raster %d", ErrInvalidRaster, raw.Size, loaded.size)
	}
	*m = *loaded
	return nil
}

// Render writes the top-left rows x cols section as text.
func (m *Map) Render(w io.Writer, rows, cols int) error {
	rows = min(rows, m.size)
	cols = min(cols, m.size)
	var sb strings.Builder
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if m.cells[y][x] == Walkable {
				sb.WriteString("·")
			} else {
				sb.WriteString("█")
			}
		}
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
