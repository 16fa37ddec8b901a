package synth

import (
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"roadscout/internal/graph"
)

// returner answers "how far back to start from here, and along which
// edges". It runs one Dijkstra pass over the reversed network, so every
// feasibility probe during the walk is a map lookup.
type returner struct {
	start    graph.NodeID
	minEdge  map[[2]graph.NodeID]*graph.Edge
	shortest path.Shortest
	ok       bool
}

func newReturner(net *graph.Network, start graph.NodeID) *returner {
	r := &returner{start: start, minEdge: make(map[[2]graph.NodeID]*graph.Edge)}
	for _, e := range net.Edges() {
		if e.From == e.To {
			continue
		}
		k := [2]graph.NodeID{e.From, e.To}
		if cur, dup := r.minEdge[k]; !dup || e.LengthM < cur.LengthM {
			r.minEdge[k] = e
		}
	}

	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for k, e := range r.minEdge {
		g.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(int64(k[1])),
			T: simple.Node(int64(k[0])),
			W: e.LengthM,
		})
	}
	src := g.Node(int64(start))
	if src == nil {
		return r // start touches no edges; everything is unreachable
	}
	r.shortest = path.DijkstraFrom(src, g)
	r.ok = true
	return r
}

// distTo is the shortest driving distance from v back to start, +Inf when
// no return exists.
func (r *returner) distTo(v graph.NodeID) float64 {
	if v == r.start {
		return 0
	}
	if !r.ok {
		return math.Inf(1)
	}
	return r.shortest.WeightTo(int64(v))
}

// pathTo reconstructs the shortest return path from v as original-direction
// edges, in driving order.
func (r *returner) pathTo(v graph.NodeID) ([]*graph.Edge, bool) {
	if v == r.start {
		return nil, true
	}
	if !r.ok {
		return nil, false
	}
	nodes, weight := r.shortest.To(int64(v))
	if len(nodes) < 2 || math.IsInf(weight, 1) {
		return nil, false
	}
	// The Dijkstra path runs start -> ... -> v over reversed edges; each
	// hop flips back to an original-direction edge, and driving order is
	// the whole sequence reversed.
	hops := make([]*graph.Edge, 0, len(nodes)-1)
	for i := 1; i < len(nodes); i++ {
		from := graph.NodeID(nodes[i].ID())
		to := graph.NodeID(nodes[i-1].ID())
		e, ok := r.minEdge[[2]graph.NodeID{from, to}]
		if !ok {
			return nil, false
		}
		hops = append(hops, e)
	}
	return lo.Reverse(hops), true
}
