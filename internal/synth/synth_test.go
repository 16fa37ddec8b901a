package synth

import (
	"fmt"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadscout/internal/graph"
	"roadscout/internal/model"
	"roadscout/internal/score"
)

// buildSquare is a one-way 250m block 1->2->3->4->1 with edges 10..13.
func buildSquare(t *testing.T) (*graph.Network, score.Composite) {
	t.Helper()
	a := orb.Point{-122.4, 37.77}
	b := geo.PointAtBearingAndDistance(a, 90, 250)
	c := geo.PointAtBearingAndDistance(b, 0, 250)
	d := geo.PointAtBearingAndDistance(c, 270, 250)
	nodes := []graph.Node{{ID: 1, Point: a}, {ID: 2, Point: b}, {ID: 3, Point: c}, {ID: 4, Point: d}}
	edges := []graph.Edge{
		{ID: 10, From: 1, To: 2, Geometry: orb.LineString{a, b}},
		{ID: 11, From: 2, To: 3, Geometry: orb.LineString{b, c}},
		{ID: 12, From: 3, To: 4, Geometry: orb.LineString{c, d}},
		{ID: 13, From: 4, To: 1, Geometry: orb.LineString{d, a}},
	}
	net, err := graph.Build(nodes, edges)
	require.NoError(t, err)
	comp := score.Composite{Scores: map[graph.EdgeID]float64{10: 0.9, 11: 0.5, 12: 0.7, 13: 0.3}}
	return net, comp
}

func TestSynthesizeSquareFullLoop(t *testing.T) {
	net, comp := buildSquare(t)
	// Budget covers the block once, with a meter of slack for geodesy.
	cands, m, err := Synthesize(net, comp, 1, Options{BudgetM: 1001, Seed: 7, TimeBudget: 5 * time.Second})
	require.NoError(t, err)

	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, []graph.EdgeID{10, 11, 12, 13}, c.Edges)
	assert.Equal(t, []graph.NodeID{1, 2, 3, 4, 1}, c.Nodes)
	assert.InDelta(t, 1000, c.LengthM, 3)
	assert.InDelta(t, 0.9+0.5+0.7+0.3, c.Score, 1e-9)
	assert.Equal(t, 4, c.Collected)
	assert.NotEmpty(t, c.ID)

	assert.Greater(t, m.Iterations, 0)
	assert.Equal(t, 1, m.Candidates)
}

func TestSynthesizeBudgetTooSmall(t *testing.T) {
	net, comp := buildSquare(t)
	_, _, err := Synthesize(net, comp, 1, Options{BudgetM: 100, Seed: 7})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNoFeasibleRoute))
}

func TestSynthesizeBadInputs(t *testing.T) {
	net, comp := buildSquare(t)

	_, _, err := Synthesize(net, comp, 42, Options{BudgetM: 1000})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfiguration), "unknown start")

	_, _, err = Synthesize(net, comp, 1, Options{BudgetM: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfiguration), "zero budget")

	_, _, err = Synthesize(net, comp, 1, Options{BudgetM: -5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfiguration), "negative budget")
}

// buildGrid is a bidirectional 3x3 grid with 200m spacing, node IDs 1..9
// row-major from the southwest corner.
func buildGrid(t testing.TB, n int) (*graph.Network, score.Composite) {
	origin := orb.Point{-122.4, 37.77}
	var nodes []graph.Node
	pts := make(map[graph.NodeID]orb.Point)
	id := func(r, c int) graph.NodeID { return graph.NodeID(r*n + c + 1) }
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			p := geo.PointAtBearingAndDistance(
				geo.PointAtBearingAndDistance(origin, 0, float64(r)*200), 90, float64(c)*200)
			pts[id(r, c)] = p
			nodes = append(nodes, graph.Node{ID: id(r, c), Point: p})
		}
	}
	var (
		edges  []graph.Edge
		nextID graph.EdgeID
	)
	connect := func(a, b graph.NodeID) {
		nextID++
		edges = append(edges, graph.Edge{ID: nextID, From: a, To: b, Geometry: orb.LineString{pts[a], pts[b]}})
		nextID++
		edges = append(edges, graph.Edge{ID: nextID, From: b, To: a, Geometry: orb.LineString{pts[b], pts[a]}})
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if c+1 < n {
				connect(id(r, c), id(r, c+1))
			}
			if r+1 < n {
				connect(id(r, c), id(r+1, c))
			}
		}
	}
	net, err := graph.Build(nodes, edges)
	if err != nil {
		t.Fatal(err)
	}
	comp := score.Composite{Scores: make(map[graph.EdgeID]float64, len(edges))}
	for _, e := range net.Edges() {
		comp.Scores[e.ID] = float64((int(e.ID)*37)%101) / 101
	}
	return net, comp
}

func TestSynthesizeGridInvariants(t *testing.T) {
	net, comp := buildGrid(t, 3)
	cands, m, err := Synthesize(net, comp, 1, Options{BudgetM: 1200, Seed: 99, MaxCandidates: 5, TimeBudget: 5 * time.Second})
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, len(cands), m.Candidates)

	for ci, c := range cands {
		assert.LessOrEqual(t, c.LengthM, 1200.0, "candidate %d over budget", ci)
		require.NotEmpty(t, c.Edges)
		assert.Equal(t, graph.NodeID(1), c.Nodes[0])
		assert.Equal(t, graph.NodeID(1), c.Nodes[len(c.Nodes)-1])

		// Walk continuity and score-counted-once.
		at := c.Nodes[0]
		seen := make(map[graph.EdgeID]bool)
		var want float64
		for _, id := range c.Edges {
			e, ok := net.Edge(id)
			require.True(t, ok)
			require.Equal(t, at, e.From, "candidate %d breaks at edge %d", ci, id)
			at = e.To
			if !seen[id] {
				seen[id] = true
				want += comp.Scores[id]
			}
		}
		assert.Equal(t, graph.NodeID(1), at)
		assert.Equal(t, len(seen), c.Collected)
		assert.InDelta(t, want, c.Score, 1e-9)
	}

	// Best first.
	for i := 1; i < len(cands); i++ {
		assert.GreaterOrEqual(t, cands[i-1].Score, cands[i].Score)
	}
}

func TestSynthesizeDeterministicForSeed(t *testing.T) {
	net, comp := buildGrid(t, 3)
	opts := Options{BudgetM: 1600, Seed: 4242, MaxCandidates: 4, TimeBudget: 5 * time.Second}

	a, _, err := Synthesize(net, comp, 5, opts)
	require.NoError(t, err)
	b, _, err := Synthesize(net, comp, 5, opts)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Edges, b[i].Edges)
		assert.Equal(t, a[i].Score, b[i].Score)
	}
}

func TestSynthesizeRevisitDoesNotReaccrue(t *testing.T) {
	// Two nodes, one street each way. Any walk longer than out-and-back
	// re-drives the same edges and must not grow its score.
	a := orb.Point{-122.4, 37.77}
	b := geo.PointAtBearingAndDistance(a, 90, 300)
	net, err := graph.Build(
		[]graph.Node{{ID: 1, Point: a}, {ID: 2, Point: b}},
		[]graph.Edge{
			{ID: 1, From: 1, To: 2, Geometry: orb.LineString{a, b}},
			{ID: 2, From: 2, To: 1, Geometry: orb.LineString{b, a}},
		})
	require.NoError(t, err)
	comp := score.Composite{Scores: map[graph.EdgeID]float64{1: 0.9, 2: 0.4}}

	cands, _, err := Synthesize(net, comp, 1, Options{BudgetM: 10000, Seed: 3, MaxCandidates: 5, TimeBudget: 5 * time.Second})
	require.NoError(t, err)
	require.NotEmpty(t, cands)

	for _, c := range cands {
		assert.InDelta(t, 1.3, c.Score, 1e-9)
		assert.Equal(t, 2, c.Collected)
	}
	// Shortest loop ranks first among equal scores.
	assert.Equal(t, []graph.EdgeID{1, 2}, cands[0].Edges)
}

func TestSynthesizeRespectsMaxCandidates(t *testing.T) {
	net, comp := buildGrid(t, 3)
	cands, _, err := Synthesize(net, comp, 1, Options{BudgetM: 1600, Seed: 11, MaxCandidates: 1, TimeBudget: 5 * time.Second})
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func BenchmarkSynthesizeGrid(b *testing.B) {
	net, comp := buildGrid(b, 5)
	opts := Options{BudgetM: 2400, Seed: 1, TimeBudget: 5 * time.Second}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Synthesize(net, comp, 1, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func ExampleSynthesize() {
	a := orb.Point{-122.4, 37.77}
	bp := geo.PointAtBearingAndDistance(a, 90, 250)
	c := geo.PointAtBearingAndDistance(bp, 0, 250)
	d := geo.PointAtBearingAndDistance(c, 270, 250)
	net, _ := graph.Build(
		[]graph.Node{{ID: 1, Point: a}, {ID: 2, Point: bp}, {ID: 3, Point: c}, {ID: 4, Point: d}},
		[]graph.Edge{
			{ID: 10, From: 1, To: 2, Geometry: orb.LineString{a, bp}},
			{ID: 11, From: 2, To: 3, Geometry: orb.LineString{bp, c}},
			{ID: 12, From: 3, To: 4, Geometry: orb.LineString{c, d}},
			{ID: 13, From: 4, To: 1, Geometry: orb.LineString{d, a}},
		})
	comp := score.Composite{Scores: map[graph.EdgeID]float64{10: 0.9, 11: 0.5, 12: 0.7, 13: 0.3}}
	cands, _, _ := Synthesize(net, comp, 1, Options{BudgetM: 1001, Seed: 7})
	fmt.Printf("loops=%d edges=%v score=%.1f\n", len(cands), cands[0].Edges, cands[0].Score)
	// Output: loops=1 edges=[10 11 12 13] score=2.4
}
