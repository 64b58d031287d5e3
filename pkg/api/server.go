// Package api serves record status, wear metrics and a small set of record
// operations over HTTP.
//
// Routes:
//
//	GET  /healthz                 liveness
//	GET  /metrics                 Prometheus metrics
//	GET  /api/v1/record           re-read the record and report it
//	GET  /api/v1/slots            per-slot header report
//	PUT  /api/v1/record/payload   patch payload bytes and write (X-API-Key)
//	POST /api/v1/record/rollback  roll back the newest edition (X-API-Key)
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssargent/nvrec/pkg/logging"
)

// Server exposes one record manager over HTTP. The manager is not safe for
// concurrent use, so every handler holds mu while touching it.
type Server struct {
	config  ServerConfig
	manager RecordManager
	log     *logging.Logger

	registry *prometheus.Registry
	metrics  *httpMetrics

	mu sync.Mutex
}

// NewServer creates a server. HTTP metrics are registered in registry,
// which is also what /metrics exposes.
func NewServer(manager RecordManager, registry *prometheus.Registry, log *logging.Logger, config ServerConfig) *Server {
	if log == nil {
		log = logging.NoopLogger()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Server{
		config:   config,
		manager:  manager,
		log:      log,
		registry: registry,
		metrics:  newHTTPMetrics(registry),
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/record", s.metrics.instrument("GET", "/api/v1/record", s.handleGetRecord))
		r.Get("/slots", s.metrics.instrument("GET", "/api/v1/slots", s.handleSlots))

		if s.config.APIKey == "" {
			return
		}
		r.Group(func(r chi.Router) {
			r.Use(apiKeyMiddleware(s.config.APIKey))
			r.Put("/record/payload", s.metrics.instrument("PUT", "/api/v1/record/payload", s.handlePatchPayload))
			r.Post("/record/rollback", s.metrics.instrument("POST", "/api/v1/record/rollback", s.handleRollBack))
		})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status server listening", "addr", s.config.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
