// Package synth builds closed collection loops over a scored network: from
// a start intersection, find walks that return to it within a distance
// budget while maximizing composite score, counting each edge's score once
// no matter how often it is driven. The underlying problem is a prize-
// collecting loop search, so the engine trades optimality for a bounded
// seeded multi-restart greedy with an always-feasible return guarantee.
package synth

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"roadscout/internal/graph"
	"roadscout/internal/model"
	"roadscout/internal/score"
)

var log = logrus.WithField("module", "synth")

const (
	defaultMaxCandidates = 3
	defaultMaxIterations = 5000
	defaultTimeBudget    = 2 * time.Second
	defaultRestarts      = 8
	defaultEpsilon       = 0.15

	// drySteps bounds how long a walk keeps wandering with nothing new to
	// collect before it is closed and restarted.
	drySteps = 12
)

type Options struct {
	BudgetM       float64
	MaxCandidates int
	MaxIterations int
	TimeBudget    time.Duration
	Restarts      int
	Seed          int64
	Epsilon       float64 // exploration probability per step
}

func (o Options) withDefaults() Options {
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = defaultMaxCandidates
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
	if o.TimeBudget <= 0 {
		o.TimeBudget = defaultTimeBudget
	}
	if o.Restarts <= 0 {
		o.Restarts = defaultRestarts
	}
	if o.Epsilon <= 0 || o.Epsilon >= 1 {
		o.Epsilon = defaultEpsilon
	}
	return o
}

// Candidate is one closed walk: Nodes[0] == Nodes[len-1] == start, LengthM
// within budget, Score counting every distinct edge once.
type Candidate struct {
	ID        string
	Edges     []graph.EdgeID
	Nodes     []graph.NodeID
	LengthM   float64
	Score     float64
	Collected int
}

type Metrics struct {
	Iterations int
	Restarts   int
	Candidates int
	Elapsed    time.Duration
}

// Synthesize returns up to MaxCandidates distinct loops, best score first.
// Effort is bounded by both MaxIterations and TimeBudget, whichever ends
// first; a zero Seed picks a random one.
func Synthesize(net *graph.Network, comp score.Composite, start graph.NodeID, opts Options) ([]Candidate, Metrics, error) {
	var m Metrics
	if net == nil || net.EdgeCount() == 0 {
		return nil, m, errors.Wrap(model.ErrDataUnavailable, "no network to synthesize over")
	}
	if _, ok := net.Node(start); !ok {
		return nil, m, errors.Wrapf(model.ErrConfiguration, "start node %d not in network", start)
	}
	o := opts.withDefaults()
	if o.BudgetM <= 0 {
		return nil, m, errors.Wrap(model.ErrConfiguration, "distance budget must be positive")
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(o.Seed))
	began := time.Now()

	ret := newReturner(net, start)
	if !anyClosableArc(net, start, ret, o.BudgetM) {
		return nil, m, errors.Wrapf(model.ErrNoFeasibleRoute,
			"no loop from node %d closes within %.0f m", start, o.BudgetM)
	}

	deadline := began.Add(o.TimeBudget)
	found := make(map[string]Candidate)
	for r := 0; r < o.Restarts; r++ {
		if m.Iterations >= o.MaxIterations || time.Now().After(deadline) {
			break
		}
		m.Restarts++
		runWalk(net, comp, start, o, ret, rng, &m, deadline, found)
	}

	type keyed struct {
		key string
		c   Candidate
	}
	all := make([]keyed, 0, len(found))
	for k, c := range found {
		all = append(all, keyed{key: k, c: c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].c.Score != all[j].c.Score {
			return all[i].c.Score > all[j].c.Score
		}
		if all[i].c.LengthM != all[j].c.LengthM {
			return all[i].c.LengthM < all[j].c.LengthM
		}
		return all[i].key < all[j].key
	})
	if len(all) > o.MaxCandidates {
		all = all[:o.MaxCandidates]
	}
	out := make([]Candidate, 0, len(all))
	for _, kc := range all {
		kc.c.ID = uuid.NewString()
		out = append(out, kc.c)
	}
	m.Candidates = len(out)
	m.Elapsed = time.Since(began)
	if len(out) == 0 {
		// The pre-check guarantees a closable arc, so this only fires when
		// effort bounds were exhausted before any walk closed.
		return nil, m, errors.Wrap(model.ErrNoFeasibleRoute, "search budget exhausted before a loop closed")
	}
	log.Debugf("synthesized %d candidates in %d iterations (%s)", len(out), m.Iterations, m.Elapsed)
	return out, m, nil
}

func anyClosableArc(net *graph.Network, start graph.NodeID, ret *returner, budget float64) bool {
	for _, e := range net.Out(start) {
		if e.LengthM+ret.distTo(e.To) <= budget {
			return true
		}
	}
	return false
}

// runWalk grows one loop greedily: among arcs that still allow returning
// within budget, prefer the best uncollected score per meter, with an
// epsilon chance of a random feasible arc. Passing through the start
// snapshots a candidate; a dry stretch or no feasible arc closes the walk
// over the shortest return path.
func runWalk(net *graph.Network, comp score.Composite, start graph.NodeID, o Options,
	ret *returner, rng *rand.Rand, m *Metrics, deadline time.Time, found map[string]Candidate) {

	var (
		walk      []*graph.Edge
		collected = make(map[graph.EdgeID]bool)
		lastUse   = make(map[graph.EdgeID]int)
		cur       = start
		lengthM   float64
		total     float64
		dry       int
		step      int
	)

	snapshot := func() {
		if len(walk) == 0 {
			return
		}
		key := walkKey(walk)
		if _, ok := found[key]; ok {
			return
		}
		found[key] = makeCandidate(start, walk, lengthM, total, len(collected))
	}

	type choice struct {
		e       *graph.Edge
		density float64
		last    int
	}

	for {
		if m.Iterations >= o.MaxIterations || time.Now().After(deadline) {
			break
		}
		m.Iterations++
		step++

		var feasible []choice
		for _, e := range net.Out(cur) {
			if lengthM+e.LengthM+ret.distTo(e.To) > o.BudgetM {
				continue
			}
			gain := 0.0
			if !collected[e.ID] {
				gain = comp.At(e.ID)
			}
			feasible = append(feasible, choice{e: e, density: gain / e.LengthM, last: lastUse[e.ID]})
		}
		if len(feasible) == 0 {
			break
		}
		sort.Slice(feasible, func(i, j int) bool {
			if feasible[i].density != feasible[j].density {
				return feasible[i].density > feasible[j].density
			}
			if feasible[i].last != feasible[j].last {
				return feasible[i].last < feasible[j].last
			}
			return feasible[i].e.ID < feasible[j].e.ID
		})
		pick := feasible[0].e
		if len(feasible) > 1 && rng.Float64() < o.Epsilon {
			pick = feasible[rng.Intn(len(feasible))].e
		}

		walk = append(walk, pick)
		lengthM += pick.LengthM
		lastUse[pick.ID] = step
		if !collected[pick.ID] {
			collected[pick.ID] = true
			total += comp.At(pick.ID)
			dry = 0
		} else {
			dry++
		}
		cur = pick.To

		if cur == start {
			snapshot()
		}
		if dry >= drySteps {
			break
		}
	}

	if cur != start {
		edges, ok := ret.pathTo(cur)
		if !ok {
			return
		}
		for _, e := range edges {
			walk = append(walk, e)
			lengthM += e.LengthM
			if !collected[e.ID] {
				collected[e.ID] = true
				total += comp.At(e.ID)
			}
		}
	}
	snapshot()
}

func walkKey(walk []*graph.Edge) string {
	var b strings.Builder
	for i, e := range walk {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(strconv.FormatInt(int64(e.ID), 10))
	}
	return b.String()
}

func makeCandidate(start graph.NodeID, walk []*graph.Edge, lengthM, total float64, collected int) Candidate {
	c := Candidate{
		Edges:     make([]graph.EdgeID, len(walk)),
		Nodes:     make([]graph.NodeID, 0, len(walk)+1),
		LengthM:   lengthM,
		Score:     total,
		Collected: collected,
	}
	c.Nodes = append(c.Nodes, start)
	for i, e := range walk {
		c.Edges[i] = e.ID
		c.Nodes = append(c.Nodes, e.To)
	}
	return c
}
