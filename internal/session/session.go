// Package session owns one scoring area: the road network loaded for it,
// the signal layers wired over it, and the cached composite. Scores are
// recomputed only when the live inputs actually move, tracked through a
// fingerprint of the weather and incident snapshots, so repeated reads and
// periodic refreshes stay cheap.
package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"roadscout/internal/config"
	"roadscout/internal/disengage"
	"roadscout/internal/graph"
	"roadscout/internal/metrics"
	"roadscout/internal/model"
	"roadscout/internal/provider"
	"roadscout/internal/risk"
	"roadscout/internal/score"
	"roadscout/internal/signal"
	"roadscout/internal/synth"

	"github.com/paulmach/orb"
)

var log = logrus.WithField("module", "session")

// CollectionSpeedMS is the average collection speed assumed when a caller
// gives a drive-time budget instead of meters: 30 mph.
const CollectionSpeedMS = 13.4

// Publisher receives session lifecycle events for fan-out to stream
// subscribers. Implementations must not block.
type Publisher interface {
	Publish(sessionID, eventType string, data map[string]any)
}

// Deps bundles the data sources a session scores from. Pub may be nil.
type Deps struct {
	Roads      provider.RoadNetwork
	Weather    provider.Weather
	Traffic    provider.Traffic
	Risk       *risk.Surface
	FloodZones []orb.Polygon
	Events     disengage.Source
	Pub        Publisher
	Now        func() time.Time // nil means time.Now
}

// Session is one scoring area with its loaded network and score cache.
// All methods are safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg    *config.Config
	deps   Deps
	area   model.BoundingBox
	window model.TimeWindow
	blend  score.BlendConfig
	net    *graph.Network
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	comp     score.Composite
	degraded []string
	fp       string
	scoredAt time.Time
	closed   bool
}

// New loads the road network for the requested area and wires the signal
// layers. A network that cannot be loaded is fatal; everything else
// degrades later, per layer.
func New(ctx context.Context, cfg *config.Config, req model.SessionCreateRequest, deps Deps) (*Session, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	area, err := resolveArea(cfg, req)
	if err != nil {
		return nil, err
	}
	window := model.TimeWindow{}
	if req.Window != nil {
		window = *req.Window
		if !window.Start.IsZero() && !window.End.IsZero() && window.End.Before(window.Start) {
			return nil, errors.Wrap(model.ErrConfiguration, "window end precedes start")
		}
	}

	nodes, edges, err := deps.Roads.Fetch(ctx, area)
	if err != nil {
		return nil, errors.WithMessage(err, "load road network")
	}
	net, err := graph.Build(nodes, edges)
	if err != nil {
		return nil, errors.WithMessage(err, "build road network")
	}

	s := &Session{
		ID:        "ses_" + uuid.NewString(),
		CreatedAt: now(),
		cfg:       cfg,
		deps:      deps,
		area:      area,
		window:    window,
		blend:     score.DefaultBlend().Merge(cfg.Weights).Merge(req.Weights),
		net:       net,
		ttl:       cfg.SnapshotTTL(),
		now:       now,
	}
	metrics.SessionsOpen.Inc()
	log.Infof("session %s opened: %d nodes, %d edges (%d dropped)",
		s.ID, net.NodeCount(), net.EdgeCount(), net.DroppedCount())
	return s, nil
}

func resolveArea(cfg *config.Config, req model.SessionCreateRequest) (model.BoundingBox, error) {
	if req.RadiusM < 0 || req.RadiusM > 10000 {
		return model.BoundingBox{}, errors.Wrapf(model.ErrConfiguration, "radius %.0f m outside (0, 10000]", req.RadiusM)
	}
	if req.Area != nil && !req.Area.IsZero() {
		a := *req.Area
		if a.MinLat >= a.MaxLat || a.MinLng >= a.MaxLng {
			return model.BoundingBox{}, errors.Wrap(model.ErrConfiguration, "area box has no extent")
		}
		return a, nil
	}
	center := cfg.Area.Center()
	radius := cfg.Area.RadiusM
	if req.Center != nil {
		center = *req.Center
	}
	if req.RadiusM > 0 {
		radius = req.RadiusM
	}
	return model.BoxAround(center, radius), nil
}

// Net exposes the loaded road network for read-only use.
func (s *Session) Net() *graph.Network { return s.net }

func (s *Session) Area() model.BoundingBox { return s.area }

func (s *Session) Window() model.TimeWindow { return s.window }

// Info summarizes the session for API responses.
func (s *Session) Info() model.SessionOut {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionOut{
		ID:        s.ID,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		Nodes:     s.net.NodeCount(),
		Edges:     s.net.EdgeCount(),
		Degraded:  append([]string(nil), s.degraded...),
	}
}

// Scores returns the composite for every edge, recomputing only when the
// cache expired and the snapshot fingerprint moved. The second return
// lists layers that degraded to zeros in the pass that produced the
// composite.
func (s *Session) Scores(ctx context.Context) (score.Composite, []string, error) {
	comp, degraded, _, err := s.scores(ctx)
	return comp, degraded, err
}

// RefreshIfStale is the refresher entry point: it reports whether a
// recompute actually happened.
func (s *Session) RefreshIfStale(ctx context.Context) (bool, error) {
	_, _, recomputed, err := s.scores(ctx)
	return recomputed, err
}

func (s *Session) scores(ctx context.Context) (score.Composite, []string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return score.Composite{}, nil, false, errors.Wrapf(model.ErrNotFound, "session %s closed", s.ID)
	}

	// Fresh cache serves without touching any provider.
	if s.comp.Scores != nil && !s.scoredAt.IsZero() && s.now().Sub(s.scoredAt) < s.ttl {
		return s.comp, s.degraded, false, nil
	}

	at := s.now()
	if !s.window.Start.IsZero() {
		at = s.window.Start
	}
	snap, werr := s.deps.Weather.Current(ctx, s.area.Center(), at)
	incidents, terr := s.deps.Traffic.Incidents(ctx, s.area, s.window)

	fp := s.fingerprint(snap, werr, incidents, terr)
	if s.comp.Scores != nil && fp == s.fp {
		// Inputs did not move; extend the cache instead of rescoring.
		s.scoredAt = s.now()
		return s.comp, s.degraded, false, nil
	}

	comp, degraded, err := s.compute(ctx, at, snap, werr, incidents, terr)
	if err != nil {
		return score.Composite{}, nil, false, err
	}
	s.comp = comp
	s.degraded = degraded
	s.fp = fp
	s.scoredAt = s.now()
	s.publish("scores.updated", map[string]any{
		"edges":    len(comp.Scores),
		"layers":   comp.Layers,
		"degraded": degraded,
	})
	return comp, degraded, true, nil
}

// compute runs every layer in parallel over the shared network, degrades
// the ones that fail, and blends the rest.
func (s *Session) compute(ctx context.Context, at time.Time,
	snap model.WeatherSnapshot, werr error,
	incidents []model.Incident, terr error) (score.Composite, []string, error) {

	start := time.Now()
	defer func() { metrics.ScoringDuration.Observe(time.Since(start).Seconds()) }()

	weather := pinnedWeather{snap: snap, err: werr}
	traffic := pinnedTraffic{incidents: incidents, err: terr}
	atFn := func() time.Time { return at }

	layers := []signal.Layer{
		signal.HistoricalRisk{Surface: s.deps.Risk},
		signal.SolarOcclusion{Weather: weather, Now: atFn},
		signal.Obstruction{Traffic: traffic, Window: s.window},
		signal.Disengagement{Source: s.deps.Events, Window: s.window},
		signal.FloodRisk{Zones: s.deps.FloodZones, Weather: weather, Now: atFn},
	}

	type result struct {
		ls  signal.LayerScore
		err error
	}
	results := make([]result, len(layers))
	var wg sync.WaitGroup
	for i, l := range layers {
		wg.Add(1)
		go func(i int, l signal.Layer) {
			defer wg.Done()
			lctx, cancel := context.WithTimeout(ctx, s.cfg.LayerTimeout())
			defer cancel()
			ls, err := l.Score(lctx, s.net)
			results[i] = result{ls: ls, err: err}
		}(i, l)
	}
	wg.Wait()

	var (
		active   []signal.LayerScore
		degraded []string
	)
	for i, r := range results {
		name := layers[i].Name()
		if r.err != nil {
			degraded = append(degraded, name)
			metrics.LayerDegraded.WithLabelValues(name).Inc()
			log.Warnf("session %s: layer %s degraded: %v", s.ID, name, r.err)
			s.publish("layer.degraded", map[string]any{"layer": name, "reason": r.err.Error()})
			continue
		}
		active = append(active, r.ls)
	}
	if len(active) == 0 {
		return score.Composite{}, nil, errors.Wrap(model.ErrDataUnavailable, "all signal layers degraded")
	}

	edgeIDs := make([]graph.EdgeID, 0, s.net.EdgeCount())
	for _, e := range s.net.Edges() {
		edgeIDs = append(edgeIDs, e.ID)
	}
	comp, err := score.Combine(edgeIDs, active, s.blend)
	if err != nil {
		return score.Composite{}, nil, err
	}
	return comp, degraded, nil
}

// Routes synthesizes collection loops against the current composite.
func (s *Session) Routes(ctx context.Context, req model.RouteRequest) ([]synth.Candidate, synth.Metrics, error) {
	comp, _, err := s.Scores(ctx)
	if err != nil {
		return nil, synth.Metrics{}, err
	}

	start, err := s.resolveStart(req)
	if err != nil {
		return nil, synth.Metrics{}, err
	}
	budget := req.BudgetM
	if budget <= 0 && req.BudgetDriveMin > 0 {
		budget = req.BudgetDriveMin * 60 * CollectionSpeedMS
	}
	if budget <= 0 {
		return nil, synth.Metrics{}, errors.Wrap(model.ErrConfiguration, "budgetM or budgetDriveMin required")
	}

	opts := synth.Options{
		BudgetM:       budget,
		MaxCandidates: req.MaxCandidates,
		MaxIterations: s.cfg.Synth.MaxIterations,
		TimeBudget:    time.Duration(s.cfg.Synth.TimeBudgetMs) * time.Millisecond,
		Restarts:      s.cfg.Synth.Restarts,
		Epsilon:       s.cfg.Synth.Epsilon,
		Seed:          req.Seed,
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = s.cfg.Synth.MaxCandidates
	}

	cands, m, err := synth.Synthesize(s.net, comp, start, opts)
	metrics.SynthIterations.Add(float64(m.Iterations))
	metrics.SynthDuration.Observe(m.Elapsed.Seconds())
	if err != nil {
		return nil, m, err
	}
	s.publish("routes.ready", map[string]any{
		"candidates": len(cands),
		"iterations": m.Iterations,
		"bestScore":  cands[0].Score,
	})
	return cands, m, nil
}

func (s *Session) resolveStart(req model.RouteRequest) (graph.NodeID, error) {
	if req.StartNodeID != nil {
		id := graph.NodeID(*req.StartNodeID)
		if _, ok := s.net.Node(id); !ok {
			return 0, errors.Wrapf(model.ErrConfiguration, "start node %d not in network", id)
		}
		return id, nil
	}
	at := s.cfg.Depot()
	if req.Start != nil {
		at = *req.Start
	}
	id, ok := s.net.NearestNode(at.Orb())
	if !ok {
		return 0, errors.Wrap(model.ErrDataUnavailable, "network has no nodes")
	}
	return id, nil
}

// ScoredAt is when the cached composite was last computed or revalidated.
func (s *Session) ScoredAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoredAt
}

// Invalidate drops the cache so the next read refetches and rescores.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.scoredAt = time.Time{}
	s.fp = ""
	s.mu.Unlock()
}

// Stale reports whether the cached composite is older than the TTL.
func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoredAt.IsZero() || s.now().Sub(s.scoredAt) >= s.ttl
}

// Close tears the session down. Further reads fail with a not-found error.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	metrics.SessionsOpen.Dec()
	s.publish("session.closed", nil)
	log.Infof("session %s closed", s.ID)
}

func (s *Session) publish(typ string, data map[string]any) {
	if s.deps.Pub == nil {
		return
	}
	s.deps.Pub.Publish(s.ID, typ, data)
}

// fingerprint keys the score cache on everything that feeds a pass: the
// window, the blend, and the live snapshots. Provider errors fold in as
// their own marker so flapping sources invalidate too.
func (s *Session) fingerprint(snap model.WeatherSnapshot, werr error,
	incidents []model.Incident, terr error) string {

	h := fnv.New64a()
	fmt.Fprintf(h, "w:%d:%d|", s.window.Start.Unix(), s.window.End.Unix())

	names := make([]string, 0, len(s.blend.Weights))
	for name := range s.blend.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "b:%s=%.4f|", name, s.blend.Weights[name])
	}

	if werr != nil {
		fmt.Fprintf(h, "we:unavailable|")
	} else {
		fmt.Fprintf(h, "ws:%d:%s:%.0f:%.1f:%.1f|",
			snap.ObservedAt.Unix(), snap.SkyCondition, snap.TempC,
			snap.Sun.AzimuthDeg, snap.Sun.AltitudeDeg)
	}

	if terr != nil {
		fmt.Fprintf(h, "te:unavailable|")
	} else {
		ids := make([]string, 0, len(incidents))
		byID := make(map[string]model.Incident, len(incidents))
		for _, inc := range incidents {
			ids = append(ids, inc.ID)
			byID[inc.ID] = inc
		}
		sort.Strings(ids)
		for _, id := range ids {
			inc := byID[id]
			fmt.Fprintf(h, "ti:%s:%d:%d|", id, inc.Severity, inc.DelaySec)
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
