package grid

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/gridcourier/core/model"
)

// Graph exposes the walkable cells of a Map as an unweighted gonum graph.
// Nodes are walkable cells, edges join orthogonal walkable neighbors.
type Graph struct {
	m *Map
}

// Graph returns a graph view over m. The view reads m directly.
func (m *Map) Graph() Graph { return Graph{m: m} }

// NodeID maps a cell to its node identifier.
func (g Graph) NodeID(l model.Location) int64 { return int64(l.Y*g.m.size + l.X) }

// Location maps a node identifier back to its cell.
func (g Graph) Location(id int64) model.Location {
	return model.Location{X: int(id) % g.m.size, Y: int(id) / g.m.size}
}

func (g Graph) walkable(id int64) bool {
	if id < 0 || id >= int64(g.m.size*g.m.size) {
		return false
	}
	l := g.Location(id)
	return g.m.IsWalkable(l.X, l.Y)
}

// Node implements graph.Graph.
func (g Graph) Node(id int64) graph.Node {
	if !g.walkable(id) {
		return nil
	}
	return simple.Node(id)
}

// Nodes implements graph.Graph.
func (g Graph) Nodes() graph.Nodes {
	cells := g.m.WalkableCells()
	nodes := make([]graph.Node, len(cells))
	for i, c := range cells {
		nodes[i] = simple.Node(g.NodeID(c))
	}
	return iterator.NewOrderedNodes(nodes)
}

// From implements graph.Graph.
func (g Graph) From(id int64) graph.Nodes {
	if !g.walkable(id) {
		return graph.Empty
	}
	l := g.Location(id)
	nb := g.m.Neighbors(l.X, l.Y)
	nodes := make([]graph.Node, len(nb))
	for i, n := range nb {
		nodes[i] = simple.Node(g.NodeID(n))
	}
	return iterator.NewOrderedNodes(nodes)
}

// HasEdgeBetween implements graph.Graph.
func (g Graph) HasEdgeBetween(xid, yid int64) bool {
	if !g.walkable(xid) || !g.walkable(yid) {
		return false
	}
	a, b := g.Location(xid), g.Location(yid)
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx+dy*dy == 1
}

// Edge implements graph.Graph.
func (g Graph) Edge(uid, vid int64) graph.Edge {
	if !g.HasEdgeBetween(uid, vid) {
		return nil
	}
	return simple.Edge{F: simple.Node(uid), T: simple.Node(vid)}
}
