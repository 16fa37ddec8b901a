package signal

import (
	"context"
	"math"

	"github.com/paulmach/orb/geo"

	"roadscout/internal/disengage"
	"roadscout/internal/graph"
	"roadscout/internal/model"
)

const (
	defaultCutoffM    = 400.0
	defaultBandwidthM = 120.0
	defaultExponent   = 1.5
)

// Disengagement scores edges by kernel density over nearby disengagement
// events, raised to Exponent. With Exponent above 1 the layer is
// super-linear in cluster size: k stacked events score k^Exponent times a
// lone event, so anomalous clusters dominate isolated noise.
type Disengagement struct {
	Source     disengage.Source
	Window     model.TimeWindow
	CutoffM    float64
	BandwidthM float64
	Exponent   float64
}

func (l Disengagement) Name() string { return LayerDisengagement }

func (l Disengagement) Score(ctx context.Context, net *graph.Network) (LayerScore, error) {
	cutoff := l.CutoffM
	if cutoff <= 0 {
		cutoff = defaultCutoffM
	}
	bandwidth := l.BandwidthM
	if bandwidth <= 0 {
		bandwidth = defaultBandwidthM
	}
	exponent := l.Exponent
	if exponent <= 0 {
		exponent = defaultExponent
	}

	events, err := l.Source.Events(ctx, model.BoxFromOrb(net.Bounds()), l.Window)
	if err != nil {
		return LayerScore{}, err
	}

	out := LayerScore{Layer: l.Name(), Scores: make(map[graph.EdgeID]float64)}
	if len(events) == 0 {
		return out, nil
	}
	for _, e := range net.Edges() {
		var density float64
		for _, ev := range events {
			d := geo.DistanceHaversine(e.MidPoint, ev.Location.Orb())
			if d <= cutoff {
				density += math.Exp(-(d / bandwidth) * (d / bandwidth))
			}
		}
		if density > 0 {
			out.Scores[e.ID] = math.Pow(density, exponent)
		}
	}
	return out, nil
}
