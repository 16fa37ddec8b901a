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
)

const (
	DefaultTomTomBase = "https://api.tomtom.com"

	// minMagnitude drops noise below "moderate" delay, matching the
	// triage threshold operators use on this feed.
	minMagnitude = 2

	// DefaultIncidentRadiusM is the influence radius applied when the feed
	// gives a point location only.
	DefaultIncidentRadiusM = 100.0
)

var iconCategories = map[int]string{
	1: "Accident", 2: "Fog", 3: "DangerousConditions", 4: "Rain", 5: "Ice",
	6: "Jam", 7: "LaneClosed", 8: "RoadClosed", 9: "RoadWorks", 10: "Wind",
	11: "Flooding", 14: "BrokenDownVehicle",
}

// TomTom pulls active incidents from the incidentDetails endpoint.
type TomTom struct {
	base    string
	key     string
	http    *http.Client
	lim     *rate.Limiter
	radiusM float64
}

func NewTomTom(base, key string, rps, radiusM float64) *TomTom {
	if base == "" {
		base = DefaultTomTomBase
	}
	if radiusM <= 0 {
		radiusM = DefaultIncidentRadiusM
	}
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &TomTom{base: base, key: key, http: newHTTPClient(DefaultTimeout), lim: lim, radiusM: radiusM}
}

type ttResponse struct {
	Incidents []struct {
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			ID               string `json:"id"`
			IconCategory     int    `json:"iconCategory"`
			MagnitudeOfDelay int    `json:"magnitudeOfDelay"`
			StartTime        string `json:"startTime"`
			EndTime          string `json:"endTime"`
			DelaySec         int    `json:"delay"`
			Events           []struct {
				Description string `json:"description"`
			} `json:"events"`
		} `json:"properties"`
	} `json:"incidents"`
}

func (c *TomTom) Incidents(ctx context.Context, area model.BoundingBox, window model.TimeWindow) (out []model.Incident, err error) {
	defer func() { countOutcome("tomtom", err) }()
	if c.key == "" {
		return nil, errors.Wrap(model.ErrDataUnavailable, "tomtom api key not configured")
	}
	if err = wait(ctx, c.lim); err != nil {
		return nil, errors.Wrap(err, "tomtom rate limit")
	}

	u := fmt.Sprintf("%s/traffic/services/5/incidentDetails?%s", c.base, url.Values{
		"key":  {c.key},
		"bbox": {fmt.Sprintf("%f,%f,%f,%f", area.MinLng, area.MinLat, area.MaxLng, area.MaxLat)},
		"fields": {"{incidents{geometry{type,coordinates},properties{id,iconCategory," +
			"magnitudeOfDelay,startTime,endTime,delay,events{description}}}}"},
	}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build tomtom request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "tomtom request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "tomtom status %d", resp.StatusCode)
	}
	var body ttResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "decode tomtom response: %v", err)
	}

	for i, inc := range body.Incidents {
		p := inc.Properties
		if p.MagnitudeOfDelay < minMagnitude {
			continue
		}
		loc, ok := firstCoordinate(inc.Geometry.Coordinates)
		if !ok {
			continue
		}
		desc := ""
		if len(p.Events) > 0 {
			desc = p.Events[0].Description
		}
		m := model.Incident{
			ID:       p.ID,
			Type:     incidentType(p.IconCategory, desc),
			Location: loc,
			RadiusM:  c.radiusM,
			Severity: severity(p.MagnitudeOfDelay),
			DelaySec: p.DelaySec,
			Start:    parseTime(p.StartTime),
			End:      parseTime(p.EndTime),
		}
		if m.ID == "" {
			m.ID = fmt.Sprintf("incident-%d", i)
		}
		if !inWindow(m, window) {
			continue
		}
		out = append(out, m)
	}
	log.Infof("tomtom: %d incidents kept of %d reported", len(out), len(body.Incidents))
	return out, nil
}

// severity maps magnitudeOfDelay to the 0..5 scale; 4 marks closures in the
// feed, which rank highest.
func severity(magnitude int) int {
	if magnitude >= 4 {
		return 5
	}
	return magnitude
}

func incidentType(icon int, desc string) string {
	if desc != "" {
		return desc
	}
	if name, ok := iconCategories[icon]; ok {
		return name
	}
	return "Unknown"
}

// firstCoordinate handles both Point ([lon,lat]) and LineString ([[lon,lat],...])
// geometry payloads.
func firstCoordinate(raw json.RawMessage) (model.GeoPoint, bool) {
	var pt [2]float64
	if err := json.Unmarshal(raw, &pt); err == nil {
		return model.GeoPoint{Lat: pt[1], Lng: pt[0]}, true
	}
	var line [][2]float64
	if err := json.Unmarshal(raw, &line); err == nil && len(line) > 0 {
		return model.GeoPoint{Lat: line[0][1], Lng: line[0][0]}, true
	}
	return model.GeoPoint{}, false
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func inWindow(m model.Incident, w model.TimeWindow) bool {
	if w.IsZero() {
		return true
	}
	if !m.End.IsZero() && !w.Start.IsZero() && m.End.Before(w.Start) {
		return false
	}
	if !m.Start.IsZero() && !w.End.IsZero() && m.Start.After(w.End) {
		return false
	}
	return true
}
