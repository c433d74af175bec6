// Package admin exposes the proxy's /metrics, /counters, and
// /healthz endpoints on a small stdlib net/http server. Three fixed
// routes with no path parameters or middleware chain don't earn a
// router dependency — see the project's design notes.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlumai/tdsguard/internal/metrics"
)

// Server is the admin HTTP surface.
type Server struct {
	counters *metrics.Counters
	mux      *http.ServeMux
}

// New builds a Server exposing counters via Prometheus and JSON, plus
// a liveness check.
func New(counters *metrics.Counters) *Server {
	s := &Server{counters: counters, mux: http.NewServeMux()}
	reg := metrics.Registry(counters)
	s.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/counters", s.handleCounters)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

// Handler returns the server's http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.counters.GetAll())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
