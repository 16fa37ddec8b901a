package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/samber/lo"

	"roadscout/internal/graph"
	"roadscout/internal/model"
	"roadscout/internal/session"
	"roadscout/internal/solar"
	"roadscout/internal/synth"
)

// SessionsHandler handles POST/GET /v1/sessions
func (s *Server) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SessionCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateCreateRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid session request", err.Error(), r.URL.Path)
			return
		}
		ses, err := session.New(r.Context(), s.Cfg, req, s.Deps)
		if err != nil {
			writeError(w, err, r.URL.Path)
			return
		}
		s.sessions.Store(ses.ID, ses)
		writeJSON(w, http.StatusCreated, ses.Info())
	case http.MethodGet:
		items := []model.SessionOut{}
		s.sessions.Range(func(_ string, ses *session.Session) bool {
			items = append(items, ses.Info())
			return true
		})
		sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SessionByIDHandler routes /v1/sessions/{id} and its subresources:
// /scores, /routes, /events/stream, /ws.
func (s *Server) SessionByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/sessions/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	ses, ok := s.getSession(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Session not found", id, path)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, ses.Info())
		case http.MethodDelete:
			s.sessions.Delete(id)
			ses.Close()
			writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch {
	case parts[1] == "scores":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleScores(w, r, ses)
	case parts[1] == "routes":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleRoutes(w, r, ses)
	case parts[1] == "events" && len(parts) > 2 && parts[2] == "stream":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleEventStream(w, r, ses)
	case parts[1] == "ws":
		s.SessionWSHandler(w, r, ses)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

// handleScores returns the per-edge choropleth payload.
func (s *Server) handleScores(w http.ResponseWriter, r *http.Request, ses *session.Session) {
	comp, degraded, err := ses.Scores(r.Context())
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	net := ses.Net()
	edges := make([]model.EdgeScoreOut, 0, net.EdgeCount())
	for _, e := range net.Edges() {
		edges = append(edges, model.EdgeScoreOut{
			EdgeID:          int64(e.ID),
			Name:            e.Name,
			Geometry:        toGeoPoints(e.Geometry),
			BearingDeg:      e.BearingDeg,
			LengthM:         e.LengthM,
			Score:           comp.At(e.ID),
			OcclusionWindow: solar.OcclusionWindow(e.BearingDeg),
		})
	}
	writeJSON(w, http.StatusOK, model.ScoresResponse{
		SessionID:  ses.ID,
		ComputedAt: ses.ScoredAt().UTC().Format(time.RFC3339),
		Degraded:   degraded,
		Edges:      edges,
	})
}

// handleRoutes synthesizes loop candidates. An infeasible request is a 422
// problem with the reason, never an empty success.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request, ses *session.Session) {
	var req model.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateRouteRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid route request", err.Error(), r.URL.Path)
		return
	}
	cands, m, err := ses.Routes(r.Context(), req)
	if err != nil {
		writeError(w, err, r.URL.Path)
		return
	}
	out := make([]model.RouteCandidateOut, 0, len(cands))
	for i, c := range cands {
		out = append(out, model.RouteCandidateOut{
			ID:          c.ID,
			Rank:        i + 1,
			StartNodeID: int64(c.Nodes[0]),
			EdgeIDs:     edgeIDsOut(c.Edges),
			Geometry:    candidateGeometry(ses.Net(), c),
			LengthM:     c.LengthM,
			Score:       c.Score,
			Collected:   c.Collected,
		})
	}
	writeJSON(w, http.StatusOK, model.RoutesResponse{
		SessionID:  ses.ID,
		Candidates: out,
		Stats: model.RouteSearchStats{
			Iterations: m.Iterations,
			Restarts:   m.Restarts,
			Candidates: m.Candidates,
			ElapsedMs:  m.Elapsed.Milliseconds(),
		},
	})
}

// handleEventStream serves the session event feed over SSE with periodic
// heartbeats.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request, ses *session.Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(ses.ID)
	defer s.Broker.Unsubscribe(ses.ID, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"sessionId\":\"%s\",\"ts\":\"%s\"}\n\n", ses.ID, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			b, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports ready once the server can serve sessions; open
// session count is included for probes that want load context.
func (s *Server) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"sessions": s.sessions.Size(),
		"uptimeS":  int(time.Since(s.started).Seconds()),
	})
}

func toGeoPoints(ls orb.LineString) []model.GeoPoint {
	return lo.Map(ls, func(p orb.Point, _ int) model.GeoPoint { return model.FromOrb(p) })
}

func edgeIDsOut(ids []graph.EdgeID) []int64 {
	return lo.Map(ids, func(id graph.EdgeID, _ int) int64 { return int64(id) })
}

// candidateGeometry stitches the edge polylines of a loop into one path,
// dropping the duplicated joint vertex between consecutive edges.
func candidateGeometry(net *graph.Network, c synth.Candidate) []model.GeoPoint {
	var out []model.GeoPoint
	for _, id := range c.Edges {
		e, ok := net.Edge(id)
		if !ok {
			continue
		}
		pts := e.Geometry
		if len(out) > 0 && len(pts) > 0 {
			pts = pts[1:]
		}
		for _, p := range pts {
			out = append(out, model.FromOrb(p))
		}
	}
	return out
}
