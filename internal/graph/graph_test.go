package graph

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadscout/internal/model"
)

// squareInput builds a one-way 250m block: 1 -e10-> 2 -e11-> 3 -e12-> 4 -e13-> 1.
func squareInput() ([]Node, []Edge) {
	a := orb.Point{-122.4, 37.77}
	b := geo.PointAtBearingAndDistance(a, 90, 250)
	c := geo.PointAtBearingAndDistance(b, 0, 250)
	d := geo.PointAtBearingAndDistance(c, 270, 250)
	nodes := []Node{{ID: 1, Point: a}, {ID: 2, Point: b}, {ID: 3, Point: c}, {ID: 4, Point: d}}
	edges := []Edge{
		{ID: 10, From: 1, To: 2, Geometry: orb.LineString{a, b}},
		{ID: 11, From: 2, To: 3, Geometry: orb.LineString{b, c}},
		{ID: 12, From: 3, To: 4, Geometry: orb.LineString{c, d}},
		{ID: 13, From: 4, To: 1, Geometry: orb.LineString{d, a}},
	}
	return nodes, edges
}

func TestBuildSquare(t *testing.T) {
	nodes, edges := squareInput()
	net, err := Build(nodes, edges)
	require.NoError(t, err)

	assert.Equal(t, 4, net.NodeCount())
	assert.Equal(t, 4, net.EdgeCount())
	assert.Equal(t, 0, net.DroppedCount())

	e10, ok := net.Edge(10)
	require.True(t, ok)
	assert.InDelta(t, 250, e10.LengthM, 2)
	assert.InDelta(t, 90, e10.BearingDeg, 1)

	e11, _ := net.Edge(11)
	assert.InDelta(t, 0, e11.BearingDeg, 1)

	e13, _ := net.Edge(13)
	assert.InDelta(t, 180, e13.BearingDeg, 2)

	require.Len(t, net.Out(1), 1)
	assert.Equal(t, EdgeID(10), net.Out(1)[0].ID)
}

func TestBuildDropsDegenerate(t *testing.T) {
	nodes, edges := squareInput()
	p := nodes[0].Point
	edges = append(edges,
		Edge{ID: 99, From: 1, To: 1, Geometry: orb.LineString{p, p}},       // zero length
		Edge{ID: 98, From: 1, To: 77, Geometry: orb.LineString{p, {0, 0}}}, // unknown node
		Edge{ID: 97, From: 1, To: 2, Geometry: orb.LineString{p}},          // broken geometry
	)
	net, err := Build(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, 4, net.EdgeCount())
	assert.Equal(t, 3, net.DroppedCount())
	_, ok := net.Edge(99)
	assert.False(t, ok)
}

func TestBuildEmptyNetwork(t *testing.T) {
	nodes, _ := squareInput()
	_, err := Build(nodes, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDataUnavailable))
}

func TestNearestNode(t *testing.T) {
	nodes, edges := squareInput()
	net, err := Build(nodes, edges)
	require.NoError(t, err)

	near2 := geo.PointAtBearingAndDistance(nodes[1].Point, 45, 10)
	id, ok := net.NearestNode(near2)
	require.True(t, ok)
	assert.Equal(t, NodeID(2), id)
}

func TestEdgesSortedByID(t *testing.T) {
	nodes, edges := squareInput()
	edges[0], edges[3] = edges[3], edges[0]
	net, err := Build(nodes, edges)
	require.NoError(t, err)
	var prev EdgeID = -1
	for _, e := range net.Edges() {
		assert.Greater(t, e.ID, prev)
		prev = e.ID
	}
}
