package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ProviderRequests counts upstream data-provider calls by provider and outcome
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provider_requests_total", Help: "Upstream provider requests by provider and outcome."},
		[]string{"provider", "outcome"},
	)
	// ScoringDuration tracks full scoring-pass durations in seconds per session
	ScoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "scoring_pass_duration_seconds", Help: "Composite scoring pass duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}},
	)
	// LayerDegraded counts scoring passes where a signal layer fell back to zeros
	LayerDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_layer_degraded_total", Help: "Signal layer degradations by layer."},
		[]string{"layer"},
	)
	// SynthIterations counts route-search loop iterations
	SynthIterations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "route_synth_iterations_total", Help: "Route synthesizer search iterations."},
	)
	// SynthDuration tracks route synthesis wall time in seconds
	SynthDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_synth_duration_seconds", Help: "Route synthesis duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}},
	)
	// SessionsOpen gauges currently open scoring sessions
	SessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "scoring_sessions_open", Help: "Currently open scoring sessions."},
	)
)

// RegisterDefault registers all collectors on Registry, once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ProviderRequests)
		Registry.MustRegister(ScoringDuration)
		Registry.MustRegister(LayerDegraded)
		Registry.MustRegister(SynthIterations)
		Registry.MustRegister(SynthDuration)
		Registry.MustRegister(SessionsOpen)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
