// Package score fuses per-layer signals into one composite priority per
// edge. Each layer is min-max normalized over the full edge set (edges a
// layer skipped count as zero), then blended as a weighted mean, so the
// composite always lands in [0,1] and no layer's raw scale can drown the
// others.
package score

import (
	"github.com/pkg/errors"

	"roadscout/internal/graph"
	"roadscout/internal/model"
	"roadscout/internal/signal"
)

type BlendConfig struct {
	Weights map[string]float64 `json:"weights" yaml:"weights"`
}

// DefaultBlend mirrors the point shares the scoring formula shipped with:
// history and disengagements carry the most weight.
func DefaultBlend() BlendConfig {
	return BlendConfig{Weights: map[string]float64{
		signal.LayerHistoricalRisk: 0.30,
		signal.LayerSolarOcclusion: 0.20,
		signal.LayerObstruction:    0.20,
		signal.LayerDisengagement:  0.30,
		signal.LayerFloodRisk:      0.20,
	}}
}

// Merge overlays user weights on top of b. Unknown layer names are kept;
// Combine ignores weights for layers that are not present.
func (b BlendConfig) Merge(overrides map[string]float64) BlendConfig {
	out := BlendConfig{Weights: make(map[string]float64, len(b.Weights))}
	for k, v := range b.Weights {
		out.Weights[k] = v
	}
	for k, v := range overrides {
		out.Weights[k] = v
	}
	return out
}

func (b BlendConfig) validate() error {
	for name, w := range b.Weights {
		if w < 0 {
			return errors.Wrapf(model.ErrConfiguration, "negative weight %.3f for layer %s", w, name)
		}
	}
	return nil
}

// Composite holds the blended score for every edge of the network.
type Composite struct {
	Scores map[graph.EdgeID]float64
	Layers []string // layers that entered the blend, in input order
}

func (c Composite) At(id graph.EdgeID) float64 { return c.Scores[id] }

// Combine blends layer scores over the full edge set. The result has
// exactly one entry per edge and is deterministic for identical inputs.
// Negative weights and blends with no effective weight are configuration
// errors, reported before any scoring work.
func Combine(edgeIDs []graph.EdgeID, layers []signal.LayerScore, blend BlendConfig) (Composite, error) {
	if err := blend.validate(); err != nil {
		return Composite{}, err
	}
	var effective float64
	for _, l := range layers {
		effective += blend.Weights[l.Layer]
	}
	if effective <= 0 {
		return Composite{}, errors.Wrap(model.ErrConfiguration, "blend weights for the active layers sum to zero")
	}

	out := Composite{Scores: make(map[graph.EdgeID]float64, len(edgeIDs))}
	for _, id := range edgeIDs {
		out.Scores[id] = 0
	}
	for _, l := range layers {
		w := blend.Weights[l.Layer]
		out.Layers = append(out.Layers, l.Layer)
		if w == 0 {
			continue
		}
		lo, hi := layerRange(edgeIDs, l)
		if hi <= lo {
			// Flat layer: no information, contributes nothing.
			continue
		}
		span := hi - lo
		for _, id := range edgeIDs {
			out.Scores[id] += w / effective * ((l.Scores[id] - lo) / span)
		}
	}
	return out, nil
}

// layerRange finds min and max over the full edge set; edges the layer did
// not score count as zero, anchoring the baseline.
func layerRange(edgeIDs []graph.EdgeID, l signal.LayerScore) (lo, hi float64) {
	first := true
	for _, id := range edgeIDs {
		v := l.Scores[id]
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
