// Package server is the sheet service: a REST surface for sheet
// mutations backed by SQLite, with per-project delta broadcast over
// websockets so every open session converges on the same state.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gridhouse/sheetsync/internal/server/storage"
)

// Server owns the storage, the broadcast hub, and the HTTP surface.
type Server struct {
	store *storage.Storage
	hub   *Hub
	token string
	newID func() string
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires the given bearer token on every request.
// An empty token leaves the service open.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithIdentityFunc overrides row identity generation, for deterministic
// tests.
func WithIdentityFunc(f func() string) Option {
	return func(s *Server) { s.newID = f }
}

// New creates a Server over opened storage.
func New(store *storage.Storage, opts ...Option) *Server {
	s := &Server{
		store: store,
		hub:   NewHub(),
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub exposes the broadcast hub, for tests and embedded use.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/sheet/projects", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleCreateProject)

		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/columns", s.handleListColumns)
			r.Post("/columns", s.handleAddColumn)
			r.Delete("/columns/{name}", s.handleRemoveColumn)

			r.Get("/rows", s.handleListRows)
			r.Post("/rows", s.handleAddRow)
			r.Delete("/rows", s.handleRemoveRows)

			r.Patch("/cells", s.handleSetCell)
			r.Get("/styles", s.handleListStyles)
			r.Put("/styles", s.handleSetStyle)

			r.Get("/stream", s.handleStream)
		})
	})

	return r
}

// Serve runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	slog.Info("sheet service starting", "addr", addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		slog.Debug("shutting down sheet service")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// requireToken enforces the bearer token when one is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
