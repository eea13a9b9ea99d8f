package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/datasetu-labs/metaforge/internal/api/handlers"
	"github.com/datasetu-labs/metaforge/internal/config"
	"github.com/datasetu-labs/metaforge/internal/dispatch"
	"github.com/datasetu-labs/metaforge/internal/harmonize"
	"github.com/datasetu-labs/metaforge/internal/pipeline"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, d *dispatch.Dispatcher, h *harmonize.Harmonizer, s *pipeline.Synthesizer) *Server {
	jobHandler := handlers.NewJobHandler(d, h, s)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", handlers.Healthz)

	r.Route("/api", func(api chi.Router) {
		api.Post("/jobs", jobHandler.Upload)
		api.Get("/jobs/{digest}", jobHandler.Status)
		api.Get("/jobs/{digest}/harmonized", jobHandler.DownloadHarmonized)
		api.Post("/synthesize", jobHandler.Synthesize)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
