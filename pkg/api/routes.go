package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.cfg.API.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.API.Server.RateLimit.RequestsPerMinute,
				))
			}

			r.Route("/runs", func(r chi.Router) {
				r.Get("/", s.handleListRuns)
				r.Get("/urls", s.handleListRunURLs)
				r.Post("/import", s.handleImportRuns)
				r.Post("/upload", s.handleUploadRun)
				r.Put("/enabled", s.handleSwitchRuns)
				r.Delete("/{id}", s.handleDeleteRun)
			})

			r.Post("/results", s.handleResults)
			r.Post("/export", s.handleExport)

			r.Route("/results/{id}/comment", func(r chi.Router) {
				r.Get("/", s.handleGetComment)
				r.Put("/", s.handleSaveComment)
				r.Delete("/", s.handleDeleteComment)
			})
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}

	origins := s.cfg.API.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
