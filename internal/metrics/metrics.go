package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route pattern, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// AssignmentOps counts roster mutations by operation and outcome
	AssignmentOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_assignment_ops_total", Help: "Roster mutations by operation and result."},
		[]string{"op", "result"},
	)
	// RouteEstimations counts per-vehicle estimation outcomes
	RouteEstimations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_route_estimations_total", Help: "Route estimations by router and result."},
		[]string{"router", "result"},
	)
	// RouteLatency tracks routing collaborator latency in milliseconds
	RouteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dispatch_route_latency_ms", Help: "Routing call latency in ms.", Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000}},
		[]string{"router"},
	)
	// DraftSaves counts autosave outcomes
	DraftSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_draft_saves_total", Help: "Draft autosaves by result."},
		[]string{"result"},
	)
	// Commits counts confirm attempts by outcome
	Commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_commits_total", Help: "Dispatch commits by result."},
		[]string{"result"},
	)
	// Sessions is the number of live dispatch sessions
	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dispatch_sessions", Help: "Open dispatch sessions."})

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(AssignmentOps, RouteEstimations, RouteLatency, DraftSaves, Commits, Sessions)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Result maps an error to the "ok"/"error" label used across counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
