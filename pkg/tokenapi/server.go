// Package tokenapi adapts a *registry.Registry to the token registry's
// HTTP surface: GET/POST/DELETE /token, GET /tokens, GET /token-owners,
// the peer-only /tokens/refresh endpoint and the operator
// /tokens/reindex endpoint.
package tokenapi

import (
	"net/http"
	"time"

	"github.com/d3v3l0/waiter/pkg/clustercalc"
	"github.com/d3v3l0/waiter/pkg/metrics"
	"github.com/d3v3l0/waiter/pkg/registry"
)

// Server is the HTTP front end for a Registry.
type Server struct {
	reg     *registry.Registry
	cluster clustercalc.Calculator
	hosts   HostResolver
	users   UserResolver
	mux     *http.ServeMux
}

// NewServer builds a Server and registers every route. cluster may be
// nil, in which case every mutation falls back to the registry's own
// default cluster.
func NewServer(reg *registry.Registry, cluster clustercalc.Calculator, hosts HostResolver, users UserResolver) *Server {
	mux := http.NewServeMux()
	s := &Server{reg: reg, cluster: cluster, hosts: hosts, users: users, mux: mux}

	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/tokens", s.handleListTokens)
	mux.HandleFunc("/token-owners", s.handleTokenOwners)
	mux.HandleFunc("/tokens/refresh", s.handlePeerRefresh)
	mux.HandleFunc("/tokens/reindex", s.handleReindex)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	return s
}

// Start runs the HTTP server on addr until it returns an error.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// GetHandler returns the HTTP handler for embedding in other servers
// or httptest harnesses.
func (s *Server) GetHandler() http.Handler {
	return s.mux
}
