// Package server exposes the canvas over HTTP: node graph CRUD,
// generation dispatch, job status checks, the asset library, and a
// server-sent-events feed of graph changes.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/assets"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/event"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/localmodels"
)

// Server wires the canvas subsystems behind an HTTP API.
type Server struct {
	store      *gencanvas.Store
	dispatcher *gencanvas.Dispatcher
	checker    gencanvas.StatusChecker
	bus        *event.Bus
	library    *assets.Library
	uploads    *assets.Uploads
	scanner    *localmodels.Scanner
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLibrary attaches the asset library. Without it the library
// endpoints return 503.
func WithLibrary(l *assets.Library) Option {
	return func(s *Server) { s.library = l }
}

// WithUploads attaches the upload store and enables /files serving.
func WithUploads(u *assets.Uploads) Option {
	return func(s *Server) { s.uploads = u }
}

// WithScanner attaches the local model scanner.
func WithScanner(sc *localmodels.Scanner) Option {
	return func(s *Server) { s.scanner = sc }
}

// WithEventBus attaches the change feed that backs /api/events.
func WithEventBus(b *event.Bus) Option {
	return func(s *Server) { s.bus = b }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server. store and dispatcher are required; checker
// backs the status endpoint and may be nil when no async provider is
// registered.
func New(store *gencanvas.Store, dispatcher *gencanvas.Dispatcher, checker gencanvas.StatusChecker, opts ...Option) *Server {
	if store == nil {
		panic("server: store cannot be nil")
	}
	if dispatcher == nil {
		panic("server: dispatcher cannot be nil")
	}
	s := &Server{
		store:      store,
		dispatcher: dispatcher,
		checker:    checker,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.handleListNodes)
			r.Post("/", s.handleCreateNode)
			r.Get("/{id}", s.handleGetNode)
			r.Patch("/{id}", s.handleUpdateNode)
			r.Delete("/{id}", s.handleDeleteNode)
			r.Post("/{id}/connect", s.handleConnect)
			r.Post("/{id}/disconnect", s.handleDisconnect)
			r.Post("/{id}/generate", s.handleGenerate)
		})
		r.Get("/generations/{id}/status", s.handleGenerationStatus)
		r.Get("/events", s.handleEvents)
		r.Post("/upload", s.handleUpload)
		r.Route("/library", func(r chi.Router) {
			r.Get("/", s.handleListLibrary)
			r.Post("/", s.handleSaveLibrary)
			r.Delete("/{id}", s.handleDeleteLibrary)
		})
		r.Get("/local-models", s.handleLocalModels)
	})

	if s.uploads != nil {
		fs := http.StripPrefix("/files/", http.FileServer(http.Dir(s.uploads.Dir())))
		r.Get("/files/*", fs.ServeHTTP)
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
