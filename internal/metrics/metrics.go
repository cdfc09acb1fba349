// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service
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

	// Solves counts finished solves by backend and result status
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "carevrp_solves_total", Help: "Finished solves by backend and result status."},
		[]string{"backend", "status"},
	)
	// SolveDuration records time spent in the MILP backend
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "carevrp_solve_duration_seconds", Help: "MILP backend time per solve.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120}},
		[]string{"backend"},
	)
	// ModelVariables tracks the size of built models
	ModelVariables = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "carevrp_model_variables", Help: "Variables per built model.", Buckets: prometheus.ExponentialBuckets(8, 2, 10)},
	)
	// SearchNodes tracks branch-and-bound nodes per solve
	SearchNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "carevrp_search_nodes", Help: "Branch-and-bound nodes per solve.", Buckets: prometheus.ExponentialBuckets(1, 4, 10)},
	)
	// InFlight is the number of runs claimed but not yet finished
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "carevrp_solves_in_flight", Help: "Solves currently running."},
	)

	// CallbackDeliveries counts callback delivery outcomes by event type and status
	CallbackDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "callback_deliveries_total", Help: "Callback deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// CallbackLatency tracks callback delivery latencies in milliseconds
	CallbackLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "callback_delivery_latency_ms", Help: "Callback delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to Registry. Safe to call repeatedly.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Solves)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(ModelVariables)
		Registry.MustRegister(SearchNodes)
		Registry.MustRegister(InFlight)
		Registry.MustRegister(CallbackDeliveries)
		Registry.MustRegister(CallbackLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
