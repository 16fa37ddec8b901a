package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/puzpuzpuz/xsync/v3"

	"roadscout/internal/config"
	"roadscout/internal/graph"
	"roadscout/internal/model"
	"roadscout/internal/session"
)

type fakeRoads struct {
	nodes []graph.Node
	edges []graph.Edge
	err   error
}

func (f fakeRoads) Fetch(_ context.Context, _ model.BoundingBox) ([]graph.Node, []graph.Edge, error) {
	return f.nodes, f.edges, f.err
}

type fakeWeather struct{ snap model.WeatherSnapshot }

func (f fakeWeather) Current(_ context.Context, _ model.GeoPoint, _ time.Time) (model.WeatherSnapshot, error) {
	return f.snap, nil
}

type fakeTraffic struct{}

func (fakeTraffic) Incidents(_ context.Context, _ model.BoundingBox, _ model.TimeWindow) ([]model.Incident, error) {
	return nil, nil
}

type fakeEvents struct{}

func (fakeEvents) Events(_ context.Context, _ model.BoundingBox, _ model.TimeWindow) ([]model.DisengagementEvent, error) {
	return nil, nil
}

func squareRoads() fakeRoads {
	a := orb.Point{-82.46, 28.05}
	b := geo.PointAtBearingAndDistance(a, 90, 250)
	c := geo.PointAtBearingAndDistance(b, 0, 250)
	d := geo.PointAtBearingAndDistance(c, 270, 250)
	return fakeRoads{
		nodes: []graph.Node{{ID: 1, Point: a}, {ID: 2, Point: b}, {ID: 3, Point: c}, {ID: 4, Point: d}},
		edges: []graph.Edge{
			{ID: 10, From: 1, To: 2, Name: "E Violet St", Geometry: orb.LineString{a, b}},
			{ID: 11, From: 2, To: 3, Geometry: orb.LineString{b, c}},
			{ID: 12, From: 3, To: 4, Geometry: orb.LineString{c, d}},
			{ID: 13, From: 4, To: 1, Geometry: orb.LineString{d, a}},
		},
	}
}

func newTestServer(t testing.TB) *Server {
	snap := model.WeatherSnapshot{
		Sun:          model.SunPosition{AzimuthDeg: 90, AltitudeDeg: 5},
		SkyCondition: "Clear",
		ObservedAt:   time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC),
	}
	s := &Server{
		Cfg:      config.Default(),
		Broker:   NewBroker(),
		sessions: xsync.NewMapOf[string, *session.Session](),
		started:  time.Now(),
	}
	s.Deps = session.Deps{
		Roads:   squareRoads(),
		Weather: fakeWeather{snap: snap},
		Traffic: fakeTraffic{},
		Events:  fakeEvents{},
		Pub:     brokerPublisher{b: s.Broker},
	}
	return s
}

func createSession(t *testing.T, s *Server, body string) model.SessionOut {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.SessionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: got %d: %s", rr.Code, rr.Body.String())
	}
	var out model.SessionOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return out
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	out := createSession(t, s, `{}`)
	if out.ID == "" || out.Edges != 4 {
		t.Fatalf("unexpected session: %+v", out)
	}

	// list
	rr := httptest.NewRecorder()
	s.SessionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), out.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}

	// get by id
	rr = httptest.NewRecorder()
	s.SessionByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+out.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get: %d", rr.Code)
	}

	// delete
	rr = httptest.NewRecorder()
	s.SessionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+out.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SessionByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+out.ID, nil))
	if rr.Code != 404 {
		t.Fatalf("get after delete: %d", rr.Code)
	}
}

func TestCreateSessionBadRequests(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{bad`))
	s.SessionsHandler(rr, req)
	if rr.Code != 400 {
		t.Fatalf("bad json: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"weights":{"obstruction":-1}}`))
	s.SessionsHandler(rr, req)
	if rr.Code != 400 {
		t.Fatalf("negative weight: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"radiusM":50000}`))
	s.SessionsHandler(rr, req)
	if rr.Code != 400 {
		t.Fatalf("oversized radius: %d", rr.Code)
	}
}

func TestCreateSessionUpstreamDown(t *testing.T) {
	s := newTestServer(t)
	s.Deps.Roads = fakeRoads{err: model.ErrDataUnavailable}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{}`))
	s.SessionsHandler(rr, req)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("want 502, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestScoresEndpoint(t *testing.T) {
	s := newTestServer(t)
	out := createSession(t, s, `{}`)

	rr := httptest.NewRecorder()
	s.SessionByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+out.ID+"/scores", nil))
	if rr.Code != 200 {
		t.Fatalf("scores: %d %s", rr.Code, rr.Body.String())
	}
	var resp model.ScoresResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Edges) != 4 {
		t.Fatalf("want 4 edges, got %d", len(resp.Edges))
	}
	for _, e := range resp.Edges {
		if e.Score < 0 || e.Score > 1 {
			t.Fatalf("edge %d score %f outside [0,1]", e.EdgeID, e.Score)
		}
		if len(e.Geometry) < 2 {
			t.Fatalf("edge %d missing geometry", e.EdgeID)
		}
	}
	// Eastbound edge faces sunrise glare.
	for _, e := range resp.Edges {
		if e.EdgeID == 10 && e.OcclusionWindow != "sunrise" {
			t.Fatalf("east edge occlusion window: %q", e.OcclusionWindow)
		}
	}
	if resp.ComputedAt == "" {
		t.Fatal("missing computedAt")
	}
}

func TestRoutesEndpoint(t *testing.T) {
	s := newTestServer(t)
	out := createSession(t, s, `{}`)

	body := []byte(`{"startNodeId":1,"budgetM":1005,"seed":7}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+out.ID+"/routes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.SessionByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("routes: %d %s", rr.Code, rr.Body.String())
	}
	var resp model.RoutesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Candidates) != 1 {
		t.Fatalf("want 1 candidate, got %d", len(resp.Candidates))
	}
	c := resp.Candidates[0]
	if c.Rank != 1 || c.StartNodeID != 1 || len(c.EdgeIDs) != 4 {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	if len(c.Geometry) < 4 || c.LengthM > 1005 {
		t.Fatalf("bad geometry/length: %d pts, %.1f m", len(c.Geometry), c.LengthM)
	}
	if resp.Stats.Iterations <= 0 {
		t.Fatalf("missing stats: %+v", resp.Stats)
	}
}

func TestRoutesInfeasibleIs422(t *testing.T) {
	s := newTestServer(t)
	out := createSession(t, s, `{}`)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+out.ID+"/routes", strings.NewReader(`{"startNodeId":1,"budgetM":100}`))
	s.SessionByIDHandler(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if p.Detail == "" {
		t.Fatal("422 must carry the infeasibility reason")
	}
}

func TestRoutesBadRequests(t *testing.T) {
	s := newTestServer(t)
	out := createSession(t, s, `{}`)

	for _, body := range []string{
		`{"budgetM":-5}`,
		`{"budgetM":1000,"budgetDriveMin":10}`,
		`{"maxCandidates":999,"budgetM":1000}`,
	} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+out.ID+"/routes", strings.NewReader(body))
		s.SessionByIDHandler(rr, req)
		if rr.Code != 400 {
			t.Fatalf("body %s: want 400, got %d", body, rr.Code)
		}
	}
}

func TestSessionNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.SessionByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/ses_missing/scores", nil))
	if rr.Code != 404 {
		t.Fatalf("want 404, got %d", rr.Code)
	}
}

func TestEventStreamHeartbeat(t *testing.T) {
	s := newTestServer(t)
	out := createSession(t, s, `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+out.ID+"/events/stream", nil).WithContext(ctx)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.SessionByIDHandler(rr, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop on context cancel")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "event: heartbeat") {
		t.Fatalf("missing heartbeat: %s", rr.Body.String())
	}
}

func TestWebSocketSubscribe(t *testing.T) {
	s := newTestServer(t)
	out := createSession(t, s, `{}`)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + out.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		t.Fatalf("ack: %v %+v", err, ack)
	}

	sub, _ := json.Marshal(subscribePayload{Events: []string{"scores.updated"}})
	if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: sub}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // allow the fanout goroutine to attach

	s.Broker.Publish(out.ID, model.Event{Type: "scores.updated", SessionID: out.ID})
	s.Broker.Publish(out.ID, model.Event{Type: "routes.ready", SessionID: out.ID})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var next wsMessage
	for {
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("read: %v", err)
		}
		if next.Type == "ping" {
			continue
		}
		break
	}
	if next.Type != "next" || next.ID != "1" {
		t.Fatalf("unexpected frame: %+v", next)
	}
	var evt model.Event
	if err := json.Unmarshal(next.Payload, &evt); err != nil || evt.Type != "scores.updated" {
		t.Fatalf("payload: %v %+v", err, evt)
	}
}

func TestMetricRouteBuckets(t *testing.T) {
	if got := metricRoute("/v1/sessions/ses_abc/scores"); got != "/v1/sessions/{id}" {
		t.Fatalf("got %q", got)
	}
	if got := metricRoute("/v1/sessions"); got != "/v1/sessions" {
		t.Fatalf("got %q", got)
	}
	if got := metricRoute("/healthz"); got != "/healthz" {
		t.Fatalf("got %q", got)
	}
}
