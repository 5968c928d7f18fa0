package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/dgallion1/inkport/internal/classify"
	"github.com/dgallion1/inkport/internal/config"
	"github.com/dgallion1/inkport/internal/pipeline"
	"github.com/dgallion1/inkport/internal/session"
)

// Server is the HTTP API server for inkport.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	sessions     *session.Registry
	classifier   *classify.Client
	log          zerolog.Logger
	cfg          config.Config
	usage        []byte
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, sessions *session.Registry, classifier *classify.Client, log zerolog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		sessions:     sessions,
		classifier:   classifier,
		log:          log,
		cfg:          cfg,
	}
	usage, err := renderUsage()
	if err != nil {
		log.Warn().Err(err).Msg("usage page unavailable")
	}
	s.usage = usage
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/", s.handleUsage)
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/sessions", s.handleCreateSession)
		r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/bounds", s.handleResize)
			r.Post("/import", s.handleImport)
			r.Delete("/import", s.handleClearImport)
			r.Get("/svg", s.handleSVG)
			r.Post("/analyse", s.handleAnalyse)
			r.Put("/filter", s.handleFilter)
		})
		r.Get("/api/imports/{jobID}/status", s.handleImportStatus)
		r.Get("/api/stats/classify", s.handleClassifyStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"sessions":    s.sessions.Len(),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
