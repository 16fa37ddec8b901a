package signal

import (
	"context"

	"github.com/paulmach/orb/geo"

	"roadscout/internal/graph"
	"roadscout/internal/model"
	"roadscout/internal/provider"
)

// Obstruction boosts edges near active traffic incidents. Construction
// zones, closures and jams are exactly the conditions a perception stack
// needs more footage of, so incidents raise priority instead of lowering
// it. Overlapping incidents accumulate; severity scales each contribution.
type Obstruction struct {
	Traffic        provider.Traffic
	Window         model.TimeWindow
	SeverityWeight float64 // default 1
	Cap            float64 // 0 means uncapped
}

func (l Obstruction) Name() string { return LayerObstruction }

func (l Obstruction) Score(ctx context.Context, net *graph.Network) (LayerScore, error) {
	weight := l.SeverityWeight
	if weight <= 0 {
		weight = 1
	}
	incidents, err := l.Traffic.Incidents(ctx, model.BoxFromOrb(net.Bounds()), l.Window)
	if err != nil {
		return LayerScore{}, err
	}

	out := LayerScore{Layer: l.Name(), Scores: make(map[graph.EdgeID]float64)}
	for _, inc := range incidents {
		radius := inc.RadiusM
		if radius <= 0 {
			radius = provider.DefaultIncidentRadiusM
		}
		pt := inc.Location.Orb()
		sev := float64(inc.Severity)
		if sev <= 0 {
			sev = 1
		}
		for _, e := range net.Edges() {
			if geo.DistanceHaversine(e.MidPoint, pt) <= radius {
				out.Scores[e.ID] += weight * sev
			}
		}
	}
	if l.Cap > 0 {
		for id, v := range out.Scores {
			if v > l.Cap {
				out.Scores[id] = l.Cap
			}
		}
	}
	if len(incidents) > 0 {
		log.Debugf("obstruction: %d incidents touched %d edges", len(incidents), len(out.Scores))
	}
	return out, nil
}
