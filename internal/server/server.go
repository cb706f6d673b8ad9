// Package server exposes the build service over HTTP: job submission and
// lifecycle, queue statistics, live progress streaming, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/events"
	"github.com/forgeworks/appforge/internal/eventstore"
	"github.com/forgeworks/appforge/internal/queue"
	"github.com/forgeworks/appforge/internal/state"
)

// Server wires the HTTP API to the queue and its read models.
type Server struct {
	cfg      config.ServerConfig
	log      *slog.Logger
	queue    *queue.BuildQueue
	store    *state.Store
	broker   *events.Broker
	events   eventstore.Store
	registry *prom.Registry
	srv      *http.Server
}

func New(cfg config.ServerConfig, q *queue.BuildQueue, store *state.Store, broker *events.Broker, es eventstore.Store, registry *prom.Registry, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log.With(slog.String("component", "server")),
		queue:    q,
		store:    store,
		broker:   broker,
		events:   es,
		registry: registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("POST /api/v1/jobs", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/jobs", s.handleList)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/v1/jobs/{id}", s.handleCancel)
	mux.HandleFunc("GET /api/v1/jobs/{id}/position", s.handlePosition)
	mux.HandleFunc("GET /api/v1/jobs/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/jobs/{id}/progress", s.handleProgress)
	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start binds the listener and serves until Shutdown. The bind happens
// eagerly so configuration problems surface at startup, not first request.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr, err)
	}
	s.log.Info("http server listening", slog.String("addr", s.cfg.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)))
	})
}
