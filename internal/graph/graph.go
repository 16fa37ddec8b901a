// Package graph holds the immutable street network a scoring session works
// over: directed edges with geometry, length and bearing, plus adjacency.
package graph

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"roadscout/internal/model"
)

var log = logrus.WithField("module", "graph")

type (
	NodeID int64
	EdgeID int64
)

type Node struct {
	ID    NodeID
	Point orb.Point
}

// Edge is one directed traversable segment. Two-way streets appear twice
// with opposite bearings, so direction-sensitive signals can tell them apart.
type Edge struct {
	ID         EdgeID
	From, To   NodeID
	WayID      int64
	Name       string
	Geometry   orb.LineString
	LengthM    float64
	BearingDeg float64
	MidPoint   orb.Point
}

// Network is read-only after Build and safe for concurrent use.
type Network struct {
	nodes   map[NodeID]*Node
	edges   []*Edge
	byID    map[EdgeID]*Edge
	out     map[NodeID][]*Edge
	bounds  orb.Bound
	dropped int
}

// Build canonicalizes the raw node/edge sets: it derives length, bearing and
// midpoint from geometry, drops degenerate records (zero length, missing
// endpoints, broken geometry) and indexes adjacency. A network with no usable
// edges is an error; individual bad records are not.
func Build(nodes []Node, edges []Edge) (*Network, error) {
	n := &Network{
		nodes: make(map[NodeID]*Node, len(nodes)),
		byID:  make(map[EdgeID]*Edge, len(edges)),
		out:   make(map[NodeID][]*Edge, len(nodes)),
	}
	for i := range nodes {
		nd := nodes[i]
		n.nodes[nd.ID] = &nd
		if len(n.nodes) == 1 {
			n.bounds = orb.Bound{Min: nd.Point, Max: nd.Point}
		} else {
			n.bounds = n.bounds.Extend(nd.Point)
		}
	}

	for i := range edges {
		e := edges[i]
		if reason := n.degenerate(&e); reason != "" {
			n.dropped++
			log.WithFields(logrus.Fields{"edge": e.ID, "reason": reason}).
				Debugf("dropping edge: %v", model.ErrDegenerateInput)
			continue
		}
		e.LengthM = lineLength(e.Geometry)
		e.BearingDeg = lineBearing(e.Geometry)
		e.MidPoint = geo.Midpoint(e.Geometry[0], e.Geometry[len(e.Geometry)-1])
		cp := e
		n.edges = append(n.edges, &cp)
		n.byID[cp.ID] = &cp
		n.out[cp.From] = append(n.out[cp.From], &cp)
	}

	if len(n.edges) == 0 {
		return nil, errors.Wrap(model.ErrDataUnavailable, "road network has no usable edges")
	}
	sort.Slice(n.edges, func(i, j int) bool { return n.edges[i].ID < n.edges[j].ID })
	if n.dropped > 0 {
		log.Warnf("dropped %d degenerate edges, kept %d", n.dropped, len(n.edges))
	}
	return n, nil
}

func (n *Network) degenerate(e *Edge) string {
	if len(e.Geometry) < 2 {
		return "geometry too short"
	}
	if _, ok := n.nodes[e.From]; !ok {
		return "unknown from node"
	}
	if _, ok := n.nodes[e.To]; !ok {
		return "unknown to node"
	}
	if _, dup := n.byID[e.ID]; dup {
		return "duplicate id"
	}
	if lineLength(e.Geometry) <= 0 {
		return "zero length"
	}
	return ""
}

func lineLength(ls orb.LineString) float64 {
	var m float64
	for i := 1; i < len(ls); i++ {
		m += geo.DistanceHaversine(ls[i-1], ls[i])
	}
	return m
}

// lineBearing is the compass bearing from the first to the last point,
// normalized to [0,360). Ring-shaped geometry falls back to the first leg.
func lineBearing(ls orb.LineString) float64 {
	a, b := ls[0], ls[len(ls)-1]
	if a == b && len(ls) > 2 {
		b = ls[1]
	}
	brg := geo.Bearing(a, b)
	if brg < 0 {
		brg += 360
	}
	return brg
}

// Edges returns all edges sorted by ID. Callers must not mutate.
func (n *Network) Edges() []*Edge { return n.edges }

func (n *Network) Edge(id EdgeID) (*Edge, bool) {
	e, ok := n.byID[id]
	return e, ok
}

func (n *Network) Node(id NodeID) (*Node, bool) {
	nd, ok := n.nodes[id]
	return nd, ok
}

// Out returns the edges leaving node, in insertion order.
func (n *Network) Out(id NodeID) []*Edge { return n.out[id] }

func (n *Network) NodeCount() int { return len(n.nodes) }
func (n *Network) EdgeCount() int { return len(n.edges) }

// DroppedCount reports how many degenerate edges Build filtered out.
func (n *Network) DroppedCount() int { return n.dropped }

func (n *Network) Bounds() orb.Bound { return n.bounds }

// Centroid of the network bounds; the sun position is sampled here.
func (n *Network) Centroid() orb.Point { return n.bounds.Center() }

// NearestNode snaps an arbitrary point to the closest intersection.
func (n *Network) NearestNode(pt orb.Point) (NodeID, bool) {
	var (
		best     NodeID
		bestDist = -1.0
	)
	for id, nd := range n.nodes {
		d := geo.DistanceHaversine(pt, nd.Point)
		if bestDist < 0 || d < bestDist || (d == bestDist && id < best) {
			best, bestDist = id, d
		}
	}
	return best, bestDist >= 0
}
