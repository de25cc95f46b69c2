// Package api is the admin HTTP surface: health, manual dispatch, roster
// and holiday inspection, activation binding and administrative inserts.
package api

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the HTTP server around the admin routes.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer creates the admin API server.
func NewServer(h *Handlers, authToken string) *Server {
	return &Server{handler: SetupRoutes(h, authToken)}
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute, // manual dispatch runs synchronously
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
