// Package signal implements the independent per-edge scoring layers. Each
// layer maps its raw signal onto edges of a network; blending and
// normalization happen downstream in the score package. Layers return raw,
// unnormalized values and omit edges their signal does not touch.
package signal

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"roadscout/internal/graph"
)

var log = logrus.WithField("module", "signal")

const (
	LayerHistoricalRisk = "historical_risk"
	LayerSolarOcclusion = "solar_occlusion"
	LayerObstruction    = "obstruction"
	LayerDisengagement  = "disengagement"
	LayerFloodRisk      = "flood_risk"
)

type LayerScore struct {
	Layer  string
	Scores map[graph.EdgeID]float64
}

// Layer computes one signal over a network. A returned error means the
// layer's data source is unavailable; the caller degrades that layer to
// zeros rather than failing the scoring pass.
type Layer interface {
	Name() string
	Score(ctx context.Context, net *graph.Network) (LayerScore, error)
}

// angularDiff is the smallest absolute difference between two compass
// bearings, in [0,180].
func angularDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
