package signal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadscout/internal/model"
)

func zoneAround(p model.GeoPoint) orb.Polygon {
	d := 0.0005
	return orb.Polygon{orb.Ring{
		{p.Lng - d, p.Lat - d}, {p.Lng + d, p.Lat - d},
		{p.Lng + d, p.Lat + d}, {p.Lng - d, p.Lat + d},
		{p.Lng - d, p.Lat - d},
	}}
}

func skyWeather(cond string) fakeWeather {
	return fakeWeather{snap: model.WeatherSnapshot{SkyCondition: cond}}
}

func TestFloodRiskWetBeatsDry(t *testing.T) {
	net := testNet(t)
	zones := []orb.Polygon{zoneAround(midpointOf(t, net, testEdgeEast))}

	wet, err := FloodRisk{Zones: zones, Weather: skyWeather("Rain")}.Score(context.Background(), net)
	require.NoError(t, err)
	dry, err := FloodRisk{Zones: zones, Weather: skyWeather("Clear")}.Score(context.Background(), net)
	require.NoError(t, err)

	assert.Equal(t, 25.0, wet.Scores[testEdgeEast])
	assert.Equal(t, 10.0, dry.Scores[testEdgeEast])
	assert.Greater(t, wet.Scores[testEdgeEast], dry.Scores[testEdgeEast])

	assert.NotContains(t, wet.Scores, testEdgeWest)
}

func TestFloodRiskNoZones(t *testing.T) {
	net := testNet(t)
	got, err := FloodRisk{Weather: skyWeather("Rain")}.Score(context.Background(), net)
	require.NoError(t, err)
	assert.Empty(t, got.Scores)
}

func TestFloodRiskDegrades(t *testing.T) {
	net := testNet(t)
	zones := []orb.Polygon{zoneAround(midpointOf(t, net, testEdgeEast))}
	l := FloodRisk{Zones: zones, Weather: fakeWeather{err: model.ErrDataUnavailable}}
	_, err := l.Score(context.Background(), net)
	require.Error(t, err)
}

func TestLoadFloodZonesKeepsASeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flood.geojson")
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"FLD_ZONE":"AE"},
		 "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
		{"type":"Feature","properties":{"FLD_ZONE":"X"},
		 "geometry":{"type":"Polygon","coordinates":[[[2,2],[3,2],[3,3],[2,3],[2,2]]]}},
		{"type":"Feature","properties":{},
		 "geometry":{"type":"Polygon","coordinates":[[[4,4],[5,4],[5,5],[4,5],[4,4]]]}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	zones, err := LoadFloodZones(path)
	require.NoError(t, err)
	// AE kept, X dropped, unclassified kept.
	assert.Len(t, zones, 2)
}
