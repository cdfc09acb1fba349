package api

import (
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"carevrp/internal/config"
	"carevrp/internal/events"
	"carevrp/internal/metrics"
	"carevrp/internal/store"
)

// Server holds the dependencies shared by the HTTP handlers. Solves are
// never run on the request goroutine; POST .../solve only enqueues.
type Server struct {
	Store  store.Store
	Broker events.Broker
	Config config.Config

	solveLimiter *rate.Limiter
}

// NewServer wires handlers to a store and broker. A non-positive
// Server.RateRPS disables solve rate limiting.
func NewServer(cfg config.Config, s store.Store, b events.Broker) *Server {
	srv := &Server{Store: s, Broker: b, Config: cfg}
	if cfg.Server.RateRPS > 0 {
		burst := cfg.Server.RateBurst
		if burst < 1 {
			burst = 1
		}
		srv.solveLimiter = rate.NewLimiter(rate.Limit(cfg.Server.RateRPS), burst)
	}
	return srv
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Instances
	mux.HandleFunc("/v1/instances", s.InstancesHandler)
	mux.HandleFunc("/v1/instances/", s.InstanceByIDHandler) // includes /tasks/{id}, /depot, /solve, /solves

	// Solves
	mux.HandleFunc("/v1/solves/", s.SolveByIDHandler) // includes /events/stream
	mux.HandleFunc("/v1/ws", s.WSHandler)

	// Service
	mux.HandleFunc("/v1/config", s.ConfigHandler)
	mux.HandleFunc("/v1/debug", s.DebugJSON)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/docs", s.DocsHandler)
	return mux
}

// Instrument records request counts and latencies. Paths are reduced to
// their route template so ids do not explode label cardinality.
func Instrument(next http.Handler) http.Handler {
	metrics.RegisterDefault()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := newTimer()
		next.ServeHTTP(rec, r)
		code := strconv.Itoa(rec.status)
		path := routeTemplate(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(timer())
	})
}
