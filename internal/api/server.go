package api

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"

	"roadscout/internal/config"
	"roadscout/internal/disengage"
	"roadscout/internal/metrics"
	"roadscout/internal/model"
	"roadscout/internal/provider"
	"roadscout/internal/risk"
	"roadscout/internal/session"
	"roadscout/internal/signal"
)

var log = logrus.WithField("module", "api")

// liveRPS caps the per-key request rate against the live weather and
// traffic APIs. Overpass gets its own, stricter limit from config.
const liveRPS = 5

type Server struct {
	Cfg    *config.Config
	Broker EventBroker
	Deps   session.Deps

	sessions *xsync.MapOf[string, *session.Session]
	started  time.Time
}

// NewServer wires the providers and offline sources from config. Sources
// that fail to load are fatal here; live providers only fail later, per
// scoring pass, where layers degrade instead.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	surface, err := risk.Load(ctx, cfg.Sources.RiskSource, cfg.Sources.MongoURI)
	if err != nil {
		return nil, err
	}
	var zones []orb.Polygon
	if cfg.Sources.FloodZones != "" {
		if zones, err = signal.LoadFloodZones(cfg.Sources.FloodZones); err != nil {
			return nil, err
		}
	}
	events, err := disengage.FromEnv(cfg.Sources.DisengageDSN, cfg.Sources.DisengageCSV, cfg.Sources.SyntheticSeed)
	if err != nil {
		return nil, err
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			log.Warnf("redis broker unavailable, using in-memory: %v", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	s := &Server{
		Cfg:      cfg,
		Broker:   broker,
		sessions: xsync.NewMapOf[string, *session.Session](),
		started:  time.Now(),
	}
	s.Deps = session.Deps{
		Roads:      provider.NewOverpass(cfg.Providers.OverpassURL, cfg.Providers.OverpassRPS),
		Weather:    provider.NewOpenWeather(cfg.Providers.OpenWeatherURL, cfg.Providers.OpenWeatherKey, liveRPS),
		Traffic:    provider.NewTomTom(cfg.Providers.TomTomURL, cfg.Providers.TomTomKey, liveRPS, cfg.Providers.TrafficRadiusM),
		Risk:       surface,
		FloodZones: zones,
		Events:     events,
		Pub:        brokerPublisher{b: broker},
	}
	metrics.RegisterDefault()
	return s, nil
}

// Sessions exposes the open-session registry; the refresh worker sweeps it.
func (s *Server) Sessions() *xsync.MapOf[string, *session.Session] { return s.sessions }

func (s *Server) getSession(id string) (*session.Session, bool) { return s.sessions.Load(id) }

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/sessions", s.SessionsHandler)
	mux.HandleFunc("/v1/sessions/", s.SessionByIDHandler) // /scores, /routes, /events/stream, /ws, DELETE

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/v1/debug", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return withMetrics(mux)
}

// brokerPublisher adapts the event broker to the session publisher shape.
type brokerPublisher struct {
	b EventBroker
}

func (p brokerPublisher) Publish(sessionID, eventType string, data map[string]any) {
	p.b.Publish(sessionID, model.Event{
		Type:      eventType,
		SessionID: sessionID,
		TS:        time.Now().UTC().Format(time.RFC3339),
		Payload:   data,
	})
}

// withMetrics instruments every request with the request counter and
// duration histogram. Paths are bucketed by route to keep cardinality flat.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := metricRoute(r.URL.Path)
		status := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the middleware wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps WebSocket upgrades working through the middleware wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

func metricRoute(path string) string {
	if strings.HasPrefix(path, "/v1/sessions/") {
		return "/v1/sessions/{id}"
	}
	return path
}
