package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/caseguard/internal/catalog"
	ihttp "github.com/wolfeidau/caseguard/internal/http"
	"github.com/wolfeidau/caseguard/internal/logger"
	"github.com/wolfeidau/caseguard/internal/store"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the record routes and health endpoints.
type Server struct {
	records *Records
	authn   func(http.Handler) http.Handler
	pinger  Pinger
}

// Option configures a Server.
type Option func(*Server)

// WithPinger enables /ready backed by p.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithMaxBodyBytes caps write payloads.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.records.maxBodyBytes = n }
}

// NewServer creates a server over rs. authn must place a principal in the
// request context for every /api request it lets through.
func NewServer(rs store.RecordStore, cat *catalog.Catalog, authn func(http.Handler) http.Handler, opts ...Option) *Server {
	s := &Server{
		records: NewRecords(rs, cat, DefaultMaxBodyBytes),
		authn:   authn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if s.pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := s.pinger.Ping(ctx); err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Store not ready")
				w.Header().Set("Retry-After", retryAfterSeconds)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	api := http.NewServeMux()
	s.records.Register(api)
	mux.Handle("/api/", s.authn(api))

	var handler http.Handler = mux
	handler = logger.NewHTTPRequests(log).Wrap(handler)
	handler = ihttp.ClientIPMiddleware()(handler)
	handler = ihttp.RequestIDMiddleware()(handler)
	return handler
}
