package model

import "time"

// Shared domain and wire types. Geographic coordinates are WGS84.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// BoxAround builds a bounding box of roughly radiusM meters around c.
// Uses the flat 111km-per-degree approximation, which is fine at city scale.
func BoxAround(c GeoPoint, radiusM float64) BoundingBox {
	off := radiusM / 111000.0
	return BoundingBox{
		MinLat: c.Lat - off,
		MinLng: c.Lng - off,
		MaxLat: c.Lat + off,
		MaxLng: c.Lng + off,
	}
}

func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLng + b.MaxLng) / 2}
}

func (b BoundingBox) IsZero() bool {
	return b.MinLat == 0 && b.MinLng == 0 && b.MaxLat == 0 && b.MaxLng == 0
}

// TimeWindow bounds a scoring pass. Zero endpoints are open.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

func (w TimeWindow) IsZero() bool { return w.Start.IsZero() && w.End.IsZero() }

// Incident is an active traffic obstruction reported by a live feed.
type Incident struct {
	ID       string    `json:"id"`
	Type     string    `json:"type,omitempty"`
	Location GeoPoint  `json:"location"`
	RadiusM  float64   `json:"radiusM"`
	Severity int       `json:"severity"` // 0 (unknown) .. 5 (blocking)
	DelaySec int       `json:"delaySec,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type SunPosition struct {
	AzimuthDeg  float64 `json:"azimuthDeg"`  // clockwise from true north, [0,360)
	AltitudeDeg float64 `json:"altitudeDeg"` // above horizon, negative at night
}

type WeatherSnapshot struct {
	Sun          SunPosition `json:"sun"`
	SkyCondition string      `json:"skyCondition,omitempty"` // Clear, Clouds, Rain, ...
	TempC        float64     `json:"tempC,omitempty"`
	VisibilityM  float64     `json:"visibilityM,omitempty"`
	ObservedAt   time.Time   `json:"observedAt"`
}

// Raining reports whether the sky condition counts as wet for flood scoring.
func (w WeatherSnapshot) Raining() bool {
	switch w.SkyCondition {
	case "Rain", "Drizzle", "Thunderstorm", "Snow":
		return true
	}
	return false
}

type DisengagementEvent struct {
	ID         string    `json:"id"`
	Location   GeoPoint  `json:"location"`
	Reason     string    `json:"reason,omitempty"`
	Severity   int       `json:"severity,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Wire requests and read models for the API

type SessionCreateRequest struct {
	Area    *BoundingBox       `json:"area,omitempty"`
	Center  *GeoPoint          `json:"center,omitempty"`
	RadiusM float64            `json:"radiusM,omitempty"`
	Window  *TimeWindow        `json:"window,omitempty"`
	Weights map[string]float64 `json:"weights,omitempty"`
}

type SessionOut struct {
	ID        string   `json:"id"`
	CreatedAt string   `json:"createdAt"`
	Nodes     int      `json:"nodes"`
	Edges     int      `json:"edges"`
	Degraded  []string `json:"degraded,omitempty"`
}

type EdgeScoreOut struct {
	EdgeID          int64      `json:"edgeId"`
	Name            string     `json:"name,omitempty"`
	Geometry        []GeoPoint `json:"geometry"`
	BearingDeg      float64    `json:"bearingDeg"`
	LengthM         float64    `json:"lengthM"`
	Score           float64    `json:"score"`
	OcclusionWindow string     `json:"occlusionWindow,omitempty"`
}

type ScoresResponse struct {
	SessionID  string         `json:"sessionId"`
	ComputedAt string         `json:"computedAt"`
	Degraded   []string       `json:"degraded,omitempty"`
	Edges      []EdgeScoreOut `json:"edges"`
}

type RouteRequest struct {
	StartNodeID    *int64    `json:"startNodeId,omitempty"`
	Start          *GeoPoint `json:"start,omitempty"`
	BudgetM        float64   `json:"budgetM,omitempty"`
	BudgetDriveMin float64   `json:"budgetDriveMin,omitempty"`
	MaxCandidates  int       `json:"maxCandidates,omitempty"`
	Seed           int64     `json:"seed,omitempty"`
}

type RouteCandidateOut struct {
	ID          string     `json:"id"`
	Rank        int        `json:"rank"`
	StartNodeID int64      `json:"startNodeId"`
	EdgeIDs     []int64    `json:"edgeIds"`
	Geometry    []GeoPoint `json:"geometry"`
	LengthM     float64    `json:"lengthM"`
	Score       float64    `json:"score"`
	Collected   int        `json:"collectedEdges"`
}

type RouteSearchStats struct {
	Iterations int   `json:"iterations"`
	Restarts   int   `json:"restarts"`
	Candidates int   `json:"candidates"`
	ElapsedMs  int64 `json:"elapsedMs"`
}

type RoutesResponse struct {
	SessionID  string              `json:"sessionId"`
	Candidates []RouteCandidateOut `json:"candidates"`
	Stats      RouteSearchStats    `json:"stats"`
}

// Event is the broker fan-out payload for session streams.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	TS        string         `json:"ts"`
	Payload   map[string]any `json:"payload,omitempty"`
}
