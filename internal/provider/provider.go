// Package provider wraps the external data sources a scoring session pulls
// from: an Overpass mirror for the street network, an OpenWeather-compatible
// API for sky conditions and a TomTom-compatible feed for live incidents.
// Every client is rate limited, bounded by a request timeout, and reports
// failures as ErrDataUnavailable so layers can degrade instead of aborting.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"roadscout/internal/graph"
	"roadscout/internal/metrics"
	"roadscout/internal/model"
)

var log = logrus.WithField("module", "provider")

// DefaultTimeout bounds any single upstream request.
const DefaultTimeout = 10 * time.Second

type RoadNetwork interface {
	Fetch(ctx context.Context, area model.BoundingBox) ([]graph.Node, []graph.Edge, error)
}

type Weather interface {
	Current(ctx context.Context, at model.GeoPoint, ts time.Time) (model.WeatherSnapshot, error)
}

type Traffic interface {
	Incidents(ctx context.Context, area model.BoundingBox, window model.TimeWindow) ([]model.Incident, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// wait blocks on the client's rate limiter, if one is configured.
func wait(ctx context.Context, lim *rate.Limiter) error {
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

func countOutcome(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ProviderRequests.WithLabelValues(provider, outcome).Inc()
}
