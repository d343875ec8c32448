// Package server exposes the ranking and dynamics engine over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/acrell/mnemo/internal/conflict"
	"github.com/acrell/mnemo/internal/dynamics"
	"github.com/acrell/mnemo/internal/ranker"
	"github.com/acrell/mnemo/internal/store"
)

// Server is the mnemo HTTP API server.
type Server struct {
	db       *store.DB
	tracker  *dynamics.Tracker
	ranker   *ranker.Ranker
	resolver *conflict.Resolver
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a Server wired to the engine components.
func New(db *store.DB, tracker *dynamics.Tracker, rk *ranker.Ranker, resolver *conflict.Resolver, version string) *Server {
	s := &Server{
		db:       db,
		tracker:  tracker,
		ranker:   rk,
		resolver: resolver,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/rank", s.handleRank)
		r.Post("/memories/promote", s.handlePromote)
		r.Post("/memories/demote", s.handleDemote)
		r.Post("/resolve", s.handleResolve)
		r.Post("/classify", s.handleClassify)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
