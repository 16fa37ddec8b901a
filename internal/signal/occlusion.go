package signal

import (
	"context"
	"math"
	"time"

	"roadscout/internal/graph"
	"roadscout/internal/model"
	"roadscout/internal/provider"
)

const (
	defaultFalloffDeg  = 15.0
	defaultLowSunDeg   = 15.0
	minOcclusionWeight = 1e-3
)

// SolarOcclusion penalizes edges that stare into a low sun: the closer the
// edge bearing sits to the sun azimuth, the higher the score, gated on the
// sun being between the horizon and the low-sun cutoff. The sun position is
// sampled once at the network centroid, which is accurate enough at city
// scale.
type SolarOcclusion struct {
	Weather      provider.Weather
	Now          func() time.Time // nil means time.Now
	FalloffDeg   float64
	LowSunMaxDeg float64
}

func (l SolarOcclusion) Name() string { return LayerSolarOcclusion }

func (l SolarOcclusion) Score(ctx context.Context, net *graph.Network) (LayerScore, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	falloff := l.FalloffDeg
	if falloff <= 0 {
		falloff = defaultFalloffDeg
	}
	lowMax := l.LowSunMaxDeg
	if lowMax <= 0 {
		lowMax = defaultLowSunDeg
	}

	snap, err := l.Weather.Current(ctx, model.FromOrb(net.Centroid()), now())
	if err != nil {
		return LayerScore{}, err
	}

	out := LayerScore{Layer: l.Name(), Scores: make(map[graph.EdgeID]float64)}
	alt := snap.Sun.AltitudeDeg
	if alt <= 0 || alt >= lowMax {
		// Night or high sun: no glare anywhere.
		return out, nil
	}
	altFactor := 1 - alt/lowMax
	for _, e := range net.Edges() {
		delta := angularDiff(e.BearingDeg, snap.Sun.AzimuthDeg)
		w := altFactor * math.Exp(-(delta/falloff)*(delta/falloff))
		if w >= minOcclusionWeight {
			out.Scores[e.ID] = w
		}
	}
	return out, nil
}
