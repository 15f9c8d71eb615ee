// Package routing computes walking distances and paths on a grid map.
package routing

import (
	"container/heap"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/path"

	"github.com/kilianp07/gridcourier/core/grid"
	"github.com/kilianp07/gridcourier/core/model"
)

var (
	// ErrInvalidEndpoint is returned when start or end is not a walkable cell.
	ErrInvalidEndpoint = errors.New("endpoint is not walkable")
	// ErrNoPath is returned when the end cannot be reached from the start.
	ErrNoPath = errors.New("no path found")
)

// CostFunc returns the cost of stepping between two adjacent walkable cells.
type CostFunc func(from, to model.Location) float64

// UniformCost charges 1 per step.
func UniformCost(model.Location, model.Location) float64 { return 1 }

// Route is a shortest path and its total cost.
type Route struct {
	Path     []model.Location `json:"path"`
	Distance float64          `json:"distance"`
}

// Router runs uniform-cost searches over a grid map.
type Router struct {
	m    *grid.Map
	cost CostFunc
}

// Option configures a Router.
type Option func(*Router)

// WithCost replaces the per-step cost. Costs must be positive.
func WithCost(c CostFunc) Option { return func(r *Router) { r.cost = c } }

// New creates a Router over m.
func New(m *grid.Map, opts ...Option) *Router {
	r := &Router{m: m, cost: UniformCost}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Map returns the grid the router searches.
func (r *Router) Map() *grid.Map { return r.m }

// Path returns the shortest route from start to end.
func (r *Router) Path(start, end model.Location) (Route, error) {
	if !r.m.IsWalkableAt(start) || !r.m.IsWalkableAt(end) {
		return Route{}, fmt.Errorf("%w: %v -> %v", ErrInvalidEndpoint, start, end)
	}
	if start == end {
		return Route{Path: []model.Location{start}}, nil
	}
	g := weightedGraph{Graph: r.m.Graph(), cost: r.cost}
	nodes, w := path.DijkstraFromTo(g.Node(g.NodeID(start)), g.Node(g.NodeID(end)), g)
	if len(nodes) == 0 || math.IsInf(w, 1) {
		return Route{}, fmt.Errorf("%w: %v -> %v", ErrNoPath, start, end)
	}
	route := Route{Path: make([]model.Location, len(nodes)), Distance: w}
	for i, n := range nodes {
		route.Path[i] = g.Location(n.ID())
	}
	return route, nil
}

// DistancesToMany returns the distance from start to every reachable target.
// The search stops once all targets are settled. Unreachable or blocked
// targets are absent from the result.
func (r *Router) DistancesToMany(start model.Location, targets []model.Location) (map[model.Location]float64, error) {
	if !r.m.IsWalkableAt(start) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, start)
	}
	size := r.m.Size()
	idx := func(l model.Location) int { return l.Y*size + l.X }

	pending := make(map[int]model.Location, len(targets))
	for _, t := range targets {
		if r.m.IsWalkableAt(t) {
			pending[idx(t)] = t
		}
	}
	out := make(map[model.Location]float64, len(pending))
	if len(pending) == 0 {
		return out, nil
	}

	dist := make([]float64, size*size)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	dist[idx(start)] = 0
	pq := &queue{{loc: start}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(item)
		ci := idx(cur.loc)
		if cur.dist > dist[ci] {
			continue
		}
		if t, ok := pending[ci]; ok {
			out[t] = cur.dist
			delete(pending, ci)
			if len(pending) == 0 {
				break
			}
		}
		for _, n := range r.m.Neighbors(cur.loc.X, cur.loc.Y) {
			nd := cur.dist + r.cost(cur.loc, n)
			if ni := idx(n); nd < dist[ni] {
				dist[ni] = nd
				heap.Push(pq, item{loc: n, dist: nd})
			}
		}
	}
	return out, nil
}

type item struct {
	loc  model.Location
	dist float64
}

type queue []item

func (q queue) Len() int           { return len(q) }
func (q queue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q queue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)        { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// weightedGraph adds step costs to the grid graph for gonum's Dijkstra.
type weightedGraph struct {
	grid.Graph
	cost CostFunc
}

func (g weightedGraph) Weight(xid, yid int64) (float64, bool) {
	if xid == yid {
		return 0, true
	}
	if !g.HasEdgeBetween(xid, yid) {
		return math.Inf(1), false
	}
	return g.cost(g.Location(xid), g.Location(yid)), true
}
