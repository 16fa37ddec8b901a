package signal

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"

	"roadscout/internal/graph"
	"roadscout/internal/model"
	"roadscout/internal/provider"
)

const (
	defaultFloodWet = 25.0
	defaultFloodDry = 10.0
)

// FloodRisk marks edges inside mapped flood zones. Wet weather raises the
// weight: a flooded underpass in the rain is a scenario worth capturing.
type FloodRisk struct {
	Zones     []orb.Polygon
	Weather   provider.Weather
	Now       func() time.Time
	WetWeight float64
	DryWeight float64
}

func (l FloodRisk) Name() string { return LayerFloodRisk }

func (l FloodRisk) Score(ctx context.Context, net *graph.Network) (LayerScore, error) {
	out := LayerScore{Layer: l.Name(), Scores: make(map[graph.EdgeID]float64)}
	if len(l.Zones) == 0 {
		return out, nil
	}
	wet, dry := l.WetWeight, l.DryWeight
	if wet <= 0 {
		wet = defaultFloodWet
	}
	if dry <= 0 {
		dry = defaultFloodDry
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}

	weight := dry
	if l.Weather != nil {
		snap, err := l.Weather.Current(ctx, model.FromOrb(net.Centroid()), now())
		if err != nil {
			return LayerScore{}, err
		}
		if snap.Raining() {
			weight = wet
		}
	}

	for _, e := range net.Edges() {
		for _, zone := range l.Zones {
			if planar.PolygonContains(zone, e.MidPoint) {
				out.Scores[e.ID] = weight
				break
			}
		}
	}
	return out, nil
}

// LoadFloodZones reads polygon features from a GeoJSON file. When a zone
// classification property is present, only high-risk A-series zones are
// kept, mirroring how FEMA-style layers mark special flood hazard areas.
func LoadFloodZones(path string) ([]orb.Polygon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "read flood zones %s: %v", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "decode flood zones %s: %v", path, err)
	}
	var zones []orb.Polygon
	for _, f := range fc.Features {
		zone := f.Properties.MustString("FLD_ZONE", f.Properties.MustString("zone", ""))
		if zone != "" && !strings.HasPrefix(zone, "A") {
			continue
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			zones = append(zones, g)
		case orb.MultiPolygon:
			zones = append(zones, g...)
		}
	}
	return zones, nil
}
