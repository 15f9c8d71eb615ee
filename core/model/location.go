package model

import "fmt"

// Location is a cell coordinate on the city grid.
type Location struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NewLocation validates the coordinates against a grid of the given size.
func NewLocation(x, y, size int) (Location, error) {
	if x < 0 || y < 0 || x >= size || y >= size {
		return Location{}, fmt.Errorf("%w: (%d,%d) outside %dx%d grid", ErrInvalidLocation, x, y, size, size)
	}
	return Location{X: x, Y: y}, nil
}

// Within reports whether the location lies inside a grid of the given size.
func (l Location) Within(size int) bool {
	return l.X >= 0 && l.Y >= 0 && l.X < size && l.Y < size
}

func (l Location) String() string { return fmt.Sprintf("(%d,%d)", l.X, l.Y) }
