package disengage

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"roadscout/internal/model"
)

var reasons = []string{
	"manual_takeover", "perception_dropout", "planner_abort",
	"sensor_glare", "hard_brake",
}

// Synthetic generates a stable set of events for an area: a few tight
// clusters (the anomalies the disengagement layer is built to surface)
// plus scattered singles. The same seed, area and window always produce
// the same events.
type Synthetic struct {
	Seed       int64
	Clusters   int
	PerCluster int     // mean cluster size
	SpreadM    float64 // cluster radius
	Singles    int
	Lookback   time.Duration // event age range when the window is open
}

func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{
		Seed:       seed,
		Clusters:   3,
		PerCluster: 5,
		SpreadM:    80,
		Singles:    12,
		Lookback:   30 * 24 * time.Hour,
	}
}

func (s *Synthetic) Events(ctx context.Context, area model.BoundingBox, window model.TimeWindow) ([]model.DisengagementEvent, error) {
	if area.IsZero() {
		return nil, nil
	}
	// Fold the area into the seed so adjacent areas do not share layouts.
	seed := s.Seed ^ int64(math.Float64bits(area.MinLat)) ^ int64(math.Float64bits(area.MaxLng))
	rng := rand.New(rand.NewSource(seed))

	end := windowEnd(window)
	start := window.Start
	if start.IsZero() {
		start = end.Add(-s.Lookback)
	}
	span := end.Sub(start)
	if span <= 0 {
		span = time.Hour
	}

	var out []model.DisengagementEvent
	emit := func(pt orb.Point) {
		out = append(out, model.DisengagementEvent{
			ID:         fmt.Sprintf("syn-%04d", len(out)),
			Location:   model.FromOrb(pt),
			Reason:     reasons[rng.Intn(len(reasons))],
			Severity:   1 + rng.Intn(3),
			OccurredAt: start.Add(time.Duration(rng.Int63n(int64(span)))),
		})
	}

	for c := 0; c < s.Clusters; c++ {
		center := randPoint(rng, area)
		n := s.PerCluster/2 + rng.Intn(s.PerCluster+1)
		for i := 0; i < n; i++ {
			d := math.Abs(rng.NormFloat64()) * s.SpreadM
			emit(geo.PointAtBearingAndDistance(center, rng.Float64()*360, d))
		}
	}
	for i := 0; i < s.Singles; i++ {
		emit(randPoint(rng, area))
	}
	return out, nil
}

func randPoint(rng *rand.Rand, b model.BoundingBox) orb.Point {
	lat := b.MinLat + rng.Float64()*(b.MaxLat-b.MinLat)
	lng := b.MinLng + rng.Float64()*(b.MaxLng-b.MinLng)
	return orb.Point{lng, lat}
}
