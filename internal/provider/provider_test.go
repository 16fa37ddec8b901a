package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadscout/internal/model"
)

const overpassXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="Overpass API">
  <node id="1" lat="37.7700" lon="-122.4000"/>
  <node id="2" lat="37.7722" lon="-122.4000"/>
  <node id="3" lat="37.7744" lon="-122.4000"/>
  <way id="100">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/>
    <tag k="highway" v="residential"/>
    <tag k="name" v="Oak Street"/>
  </way>
  <way id="101">
    <nd ref="1"/><nd ref="2"/>
    <tag k="highway" v="primary"/>
    <tag k="oneway" v="yes"/>
  </way>
  <way id="102">
    <nd ref="2"/><nd ref="3"/>
    <tag k="highway" v="footway"/>
  </way>
</osm>`

func TestOverpassFetchSplitsWays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.Form.Get("data"), "[out:xml]")
		w.Write([]byte(overpassXML))
	}))
	defer srv.Close()

	op := NewOverpass(srv.URL, 0)
	nodes, edges, err := op.Fetch(context.Background(), model.BoundingBox{MinLat: 37.76, MinLng: -122.41, MaxLat: 37.78, MaxLng: -122.39})
	require.NoError(t, err)

	// way 100 is two-way with two segments (4 edges), way 101 is oneway (1),
	// way 102 is not drivable.
	assert.Len(t, edges, 5)
	assert.Len(t, nodes, 3)

	byWay := map[int64]int{}
	for _, e := range edges {
		byWay[e.WayID]++
	}
	assert.Equal(t, 4, byWay[100])
	assert.Equal(t, 1, byWay[101])

	assert.Equal(t, "Oak Street", edges[0].Name)
}

func TestOverpassNoWays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<osm version="0.6"></osm>`))
	}))
	defer srv.Close()

	op := NewOverpass(srv.URL, 0)
	_, _, err := op.Fetch(context.Background(), model.BoundingBox{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDataUnavailable))
}

func TestOpenWeatherMissingKey(t *testing.T) {
	c := NewOpenWeather("", "", 0)
	_, err := c.Current(context.Background(), model.GeoPoint{Lat: 51.5, Lng: 0}, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDataUnavailable))
}

func TestOpenWeatherCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		w.Write([]byte(`{"weather":[{"main":"Rain"}],"main":{"temp":18.5},"visibility":8000,"dt":1710892800}`))
	}))
	defer srv.Close()

	c := NewOpenWeather(srv.URL, "test-key", 0)
	at := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	snap, err := c.Current(context.Background(), model.GeoPoint{Lat: 51.4769, Lng: 0}, at)
	require.NoError(t, err)

	assert.Equal(t, "Rain", snap.SkyCondition)
	assert.True(t, snap.Raining())
	assert.Equal(t, 18.5, snap.TempC)
	assert.Equal(t, int64(1710892800), snap.ObservedAt.Unix())
	assert.Less(t, snap.Sun.AltitudeDeg, 0.0) // midnight
}

func TestTomTomFiltersMagnitude(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"incidents":[
			{"geometry":{"type":"Point","coordinates":[-122.41,37.77]},
			 "properties":{"id":"a","iconCategory":6,"magnitudeOfDelay":1,"delay":30}},
			{"geometry":{"type":"LineString","coordinates":[[-122.42,37.78],[-122.43,37.79]]},
			 "properties":{"id":"b","iconCategory":8,"magnitudeOfDelay":4,"delay":600,
			  "events":[{"description":"Road closed"}]}}
		]}`))
	}))
	defer srv.Close()

	c := NewTomTom(srv.URL, "test-key", 0, 0)
	got, err := c.Incidents(context.Background(), model.BoundingBox{}, model.TimeWindow{})
	require.NoError(t, err)

	require.Len(t, got, 1)
	inc := got[0]
	assert.Equal(t, "b", inc.ID)
	assert.Equal(t, 5, inc.Severity) // closures rank highest
	assert.Equal(t, "Road closed", inc.Type)
	assert.InDelta(t, 37.78, inc.Location.Lat, 1e-9)
	assert.InDelta(t, -122.42, inc.Location.Lng, 1e-9)
	assert.Equal(t, DefaultIncidentRadiusM, inc.RadiusM)
}

func TestTomTomMissingKey(t *testing.T) {
	c := NewTomTom("", "", 0, 0)
	_, err := c.Incidents(context.Background(), model.BoundingBox{}, model.TimeWindow{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDataUnavailable))
}

func TestIncidentWindowFilter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := model.TimeWindow{Start: now, End: now.Add(time.Hour)}

	past := model.Incident{Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour)}
	active := model.Incident{Start: now.Add(-time.Hour), End: now.Add(30 * time.Minute)}
	open := model.Incident{Start: now.Add(-time.Hour)}

	assert.False(t, inWindow(past, w))
	assert.True(t, inWindow(active, w))
	assert.True(t, inWindow(open, w))
	assert.True(t, inWindow(past, model.TimeWindow{}))
}
