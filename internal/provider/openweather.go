package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"roadscout/internal/model"
	"roadscout/internal/solar"
)

const DefaultOpenWeatherBase = "https://api.openweathermap.org"

// OpenWeather reads current sky conditions and pairs them with a locally
// computed sun position. Without an API key every call degrades.
type OpenWeather struct {
	base string
	key  string
	http *http.Client
	lim  *rate.Limiter
}

func NewOpenWeather(base, key string, rps float64) *OpenWeather {
	if base == "" {
		base = DefaultOpenWeatherBase
	}
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &OpenWeather{base: base, key: key, http: newHTTPClient(DefaultTimeout), lim: lim}
}

type owResponse struct {
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Visibility float64 `json:"visibility"`
	Dt         int64   `json:"dt"`
}

func (c *OpenWeather) Current(ctx context.Context, at model.GeoPoint, ts time.Time) (snap model.WeatherSnapshot, err error) {
	defer func() { countOutcome("openweather", err) }()
	if c.key == "" {
		return snap, errors.Wrap(model.ErrDataUnavailable, "openweather api key not configured")
	}
	if err = wait(ctx, c.lim); err != nil {
		return snap, errors.Wrap(err, "openweather rate limit")
	}

	u := fmt.Sprintf("%s/data/2.5/weather?%s", c.base, url.Values{
		"lat":   {fmt.Sprintf("%f", at.Lat)},
		"lon":   {fmt.Sprintf("%f", at.Lng)},
		"appid": {c.key},
		"units": {"metric"},
	}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return snap, errors.Wrap(err, "build openweather request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return snap, errors.Wrapf(model.ErrDataUnavailable, "openweather request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, errors.Wrapf(model.ErrDataUnavailable, "openweather status %d", resp.StatusCode)
	}
	var body owResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return snap, errors.Wrapf(model.ErrDataUnavailable, "decode openweather response: %v", err)
	}

	az, alt := solar.Position(ts, at.Lat, at.Lng)
	snap = model.WeatherSnapshot{
		Sun:         model.SunPosition{AzimuthDeg: az, AltitudeDeg: alt},
		TempC:       body.Main.Temp,
		VisibilityM: body.Visibility,
		ObservedAt:  ts,
	}
	if len(body.Weather) > 0 {
		snap.SkyCondition = body.Weather[0].Main
	}
	if body.Dt > 0 {
		snap.ObservedAt = time.Unix(body.Dt, 0).UTC()
	}
	return snap, nil
}
