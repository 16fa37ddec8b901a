package signal

import (
	"context"

	"roadscout/internal/graph"
	"roadscout/internal/risk"
)

const defaultSampleRadiusM = 150.0

// HistoricalRisk scores edges by sampling the injury-density surface at
// each edge midpoint. Edges with no nearby history are omitted, which the
// blender treats as zero.
type HistoricalRisk struct {
	Surface       *risk.Surface
	SampleRadiusM float64
}

func (l HistoricalRisk) Name() string { return LayerHistoricalRisk }

func (l HistoricalRisk) Score(ctx context.Context, net *graph.Network) (LayerScore, error) {
	r := l.SampleRadiusM
	if r <= 0 {
		r = defaultSampleRadiusM
	}
	surface := l.Surface
	if surface == nil {
		surface = risk.Empty()
	}
	out := LayerScore{Layer: l.Name(), Scores: make(map[graph.EdgeID]float64)}
	for _, e := range net.Edges() {
		if v := surface.Sample(e.MidPoint, r); v > 0 {
			out.Scores[e.ID] = v
		}
	}
	return out, nil
}
