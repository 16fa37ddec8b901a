package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"roadscout/internal/graph"
	"roadscout/internal/model"
)

const DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"

// drivable lists the highway classes a collection vehicle can run.
var drivable = map[string]bool{
	"motorway": true, "motorway_link": true,
	"trunk": true, "trunk_link": true,
	"primary": true, "primary_link": true,
	"secondary": true, "secondary_link": true,
	"tertiary": true, "tertiary_link": true,
	"unclassified": true, "residential": true, "living_street": true,
}

// Overpass fetches the drivable street network for an area from an Overpass
// API mirror and splits each way into directed node-to-node edges.
type Overpass struct {
	endpoint string
	http     *http.Client
	lim      *rate.Limiter
}

func NewOverpass(endpoint string, rps float64) *Overpass {
	if endpoint == "" {
		endpoint = DefaultOverpassEndpoint
	}
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Overpass{endpoint: endpoint, http: newHTTPClient(DefaultTimeout), lim: lim}
}

func (o *Overpass) Fetch(ctx context.Context, area model.BoundingBox) (nodes []graph.Node, edges []graph.Edge, err error) {
	defer func() { countOutcome("overpass", err) }()
	if err = wait(ctx, o.lim); err != nil {
		return nil, nil, errors.Wrap(err, "overpass rate limit")
	}

	q := fmt.Sprintf(`[out:xml][timeout:25];way["highway"](%f,%f,%f,%f);(._;>;);out body;`,
		area.MinLat, area.MinLng, area.MaxLat, area.MaxLng)
	form := url.Values{"data": {q}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, errors.Wrap(err, "build overpass request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, nil, errors.Wrapf(model.ErrDataUnavailable, "overpass request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, errors.Wrapf(model.ErrDataUnavailable, "overpass status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrapf(model.ErrDataUnavailable, "read overpass response: %v", err)
	}

	var doc osm.OSM
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, nil, errors.Wrapf(model.ErrDataUnavailable, "decode overpass response: %v", err)
	}
	nodes, edges = splitWays(&doc)
	if len(edges) == 0 {
		return nil, nil, errors.Wrap(model.ErrDataUnavailable, "overpass returned no drivable ways")
	}
	log.Infof("overpass: %d ways -> %d edges, %d nodes", len(doc.Ways), len(edges), len(nodes))
	return nodes, edges, nil
}

// splitWays turns OSM ways into directed segments between consecutive way
// nodes. Two-way streets get a reverse twin; oneway tags and roundabouts
// suppress it.
func splitWays(doc *osm.OSM) ([]graph.Node, []graph.Edge) {
	points := make(map[osm.NodeID]orb.Point, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		points[nd.ID] = orb.Point{nd.Lon, nd.Lat}
	}

	var (
		edges  []graph.Edge
		nodes  []graph.Node
		seen   = make(map[osm.NodeID]bool)
		nextID graph.EdgeID
	)
	keepNode := func(id osm.NodeID) {
		if !seen[id] {
			seen[id] = true
			nodes = append(nodes, graph.Node{ID: graph.NodeID(id), Point: points[id]})
		}
	}
	emit := func(w *osm.Way, a, b osm.NodeID) {
		nextID++
		edges = append(edges, graph.Edge{
			ID:       nextID,
			From:     graph.NodeID(a),
			To:       graph.NodeID(b),
			WayID:    int64(w.ID),
			Name:     w.Tags.Find("name"),
			Geometry: orb.LineString{points[a], points[b]},
		})
		keepNode(a)
		keepNode(b)
	}

	for _, w := range doc.Ways {
		if !drivable[w.Tags.Find("highway")] {
			continue
		}
		forward, backward := wayDirections(w)
		for i := 1; i < len(w.Nodes); i++ {
			a, b := w.Nodes[i-1].ID, w.Nodes[i].ID
			if _, ok := points[a]; !ok {
				continue
			}
			if _, ok := points[b]; !ok {
				continue
			}
			if forward {
				emit(w, a, b)
			}
			if backward {
				emit(w, b, a)
			}
		}
	}
	return nodes, edges
}

func wayDirections(w *osm.Way) (forward, backward bool) {
	switch w.Tags.Find("oneway") {
	case "yes", "true", "1":
		return true, false
	case "-1", "reverse":
		return false, true
	}
	if w.Tags.Find("junction") == "roundabout" {
		return true, false
	}
	return true, true
}
