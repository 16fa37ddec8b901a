package session

import (
	"context"
	"time"

	"roadscout/internal/model"
)

// pinnedWeather and pinnedTraffic replay a snapshot fetched once per
// scoring pass, so the layers that share it see identical inputs and the
// providers are not hit once per layer.

type pinnedWeather struct {
	snap model.WeatherSnapshot
	err  error
}

func (p pinnedWeather) Current(_ context.Context, _ model.GeoPoint, _ time.Time) (model.WeatherSnapshot, error) {
	return p.snap, p.err
}

type pinnedTraffic struct {
	incidents []model.Incident
	err       error
}

func (p pinnedTraffic) Incidents(_ context.Context, _ model.BoundingBox, _ model.TimeWindow) ([]model.Incident, error) {
	return p.incidents, p.err
}
