// Package api exposes Core B's JSON status/progress/retrieval HTTP
// surface (spec §6 "Retrieval query envelope"): a thin chi router over
// pkg/retrieval and pkg/vectorstore, with the same middleware stack and
// optional API-key auth the teacher's service wires for every HTTP
// surface it exposes. The concrete web UI templates and CSS the teacher
// served alongside this router are out of scope (spec §1 non-goal); only
// the JSON surface is carried forward.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/loomwork/loom/internal/config"
	"github.com/loomwork/loom/pkg/retrieval"
	"github.com/loomwork/loom/pkg/vectorstore"
)

// version is set via -ldflags at build time, or by SetVersion.
var version = "dev"

// SetVersion sets the version string (called from main).
func SetVersion(v string) {
	version = v
}

// Server is the loom-ingest HTTP service: retrieval queries and store
// status over the vector store opened by the caller.
type Server struct {
	cfg    *config.Config
	store  *vectorstore.Store
	engine *retrieval.Engine
	router chi.Router
}

// NewServer creates a new API server bound to an already-open vector
// store and retrieval engine.
func NewServer(cfg *config.Config, store *vectorstore.Store, engine *retrieval.Engine) *Server {
	s := &Server{cfg: cfg, store: store, engine: engine}
	s.setupRouter()
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.cfg.API.APIKey != "" {
		r.Use(s.apiKeyAuth)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Get("/stats", s.handleStats)
	r.Post("/query", s.handleQuery)
	r.Get("/verify-consistency", s.handleVerifyConsistency)

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// apiKeyAuth is middleware that validates the API key header against the
// configured key, skipping /health and /version.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/version" {
			next.ServeHTTP(w, r)
			return
		}
		if s.cfg.API.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}
		if apiKey != s.cfg.API.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
