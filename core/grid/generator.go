package grid

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/traverse"
)

// Generator builds maps whose walkable cells form one connected region.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator returns a Generator drawing from rnd. A nil rnd is seeded
// from the clock.
func NewGenerator(rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rnd: rnd}
}

func validate(size int, wallProbability float64) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if wallProbability < 0 || wallProbability > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidWallProbability, wallProbability)
	}
	return nil
}

// Generate runs one growing-tree pass followed by the openness and
// connectivity passes.
func (g *Generator) Generate(size int, wallProbability float64) (*Map, error) {
	if err := validate(size, wallProbability); err != nil {
		return nil, err
	}
	m := blank(size, Blocked)
	g.grow(m, wallProbability)
	g.open(m, wallProbability)
	connect(m)
	return m, nil
}

// GenerateBest keeps the candidate with the most walkable cells out of
// attempts runs.
func (g *Generator) GenerateBest(size int, wallProbability float64, attempts int) (*Map, error) {
	if attempts < 1 {
		attempts = 1
	}
	var best *Map
	bestCount := -1
	for i := 0; i < attempts; i++ {
		m, err := g.Generate(size, wallProbability)
		if err != nil {
			return nil, err
		}
		if n := m.CountWalkable(); n > bestCount {
			best, bestCount = m, n
		}
	}
	return best, nil
}

type cell struct{ x, y int }

func (g *Generator) grow(m *Map, wallProbability float64) {
	visited := make([][]bool, m.size)
	for y := range visited {
		visited[y] = make([]bool, m.size)
	}
	start := cell{g.rnd.Intn(m.size), g.rnd.Intn(m.size)}
	m.cells[start.y][start.x] = Walkable
	visited[start.y][start.x] = true
	frontier := []cell{start}

	candidates := make([]cell, 0, 4)
	for len(frontier) > 0 {
		i := g.rnd.Intn(len(frontier))
		cur := frontier[i]
		candidates = candidates[:0]
		for _, o := range offsets {
			n := cell{cur.x + o[0], cur.y + o[1]}
			if m.inBounds(n.x, n.y) && !visited[n.y][n.x] {
				candidates = append(candidates, n)
			}
		}
		if len(candidates) == 0 {
			frontier[i] = frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
			continue
		}
		next := candidates[g.rnd.Intn(len(candidates))]
		visited[next.y][next.x] = true
		if g.rnd.Float64() >= wallProbability {
			m.cells[next.y][next.x] = Walkable
			frontier = append(frontier, next)
		}
	}
}

// open carves blocked cells next to corridors so the map is less maze-like.
func (g *Generator) open(m *Map, wallProbability float64) {
	threshold := 1.5 * wallProbability
	for y := 0; y < m.size; y++ {
		for x := 0; x < m.size; x++ {
			if m.cells[y][x] != Blocked || len(m.Neighbors(x, y)) == 0 {
				continue
			}
			if g.rnd.Float64() >= threshold {
				m.cells[y][x] = Walkable
			}
		}
	}
}

// connect blocks every walkable cell unreachable from the first walkable
// cell in row-major order.
func connect(m *Map) {
	cells := m.WalkableCells()
	if len(cells) == 0 {
		return
	}
	gr := m.Graph()
	reached := make(map[int64]bool, len(cells))
	bf := traverse.BreadthFirst{Visit: func(n graph.Node) { reached[n.ID()] = true }}
	bf.Walk(gr, gr.Node(gr.NodeID(cells[0])), nil)
	for _, c := range cells {
		if !reached[gr.NodeID(c)] {
			m.cells[c.Y][c.X] = Blocked
		}
	}
}
