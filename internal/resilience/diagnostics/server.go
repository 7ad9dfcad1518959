package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Source produces a JSON-encodable snapshot for a read-only endpoint.
type Source func() any

// Sources are the extra snapshots exposed by the server.
type Sources struct {
	Stats    Source
	Events   Source
	Recovery Source
}

// Server provides HTTP endpoints for diagnostics and observability.
type Server struct {
	monitor *Monitor
	sources Sources
	limiter *rate.Limiter
	server  *http.Server
}

// NewServer creates a new diagnostics server listening on addr.
func NewServer(addr string, monitor *Monitor, sources Sources) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		sources: sources,
		limiter: rate.NewLimiter(rate.Limit(monitor.runner.Config().RateLimit), 1),
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/stats", s.handleSource(sources.Stats))
	mux.HandleFunc("/events", s.handleSource(sources.Events))
	mux.HandleFunc("/recovery", s.handleSource(sources.Recovery))
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Check(r.Context())
	code := http.StatusOK
	if report.Status == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.Status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Check(r.Context()))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "diagnostics rate limit exceeded"})
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.Refresh(r.Context()))
}

func (s *Server) handleSource(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, src())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
