// Package api exposes the page pipeline over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/paper-extractor/internal/events"
	"github.com/spherical/paper-extractor/internal/observability"
)

// Config holds router settings.
type Config struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64
	AllowedOrigins []string
	Version        string
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, session Pipeline, bus events.Bus, cfg Config) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))

	sessionHandler := NewSessionHandler(logger, session, cfg.MaxUploadBytes)
	eventsHandler := NewEventsHandler(logger, bus)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "paper-extractor",
			"version": cfg.Version,
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived stream, no request timeout.
		r.Get("/events", eventsHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

			r.Post("/session", sessionHandler.Upload)
			r.Delete("/session", sessionHandler.Reset)

			r.Route("/pages", func(r chi.Router) {
				r.Get("/", sessionHandler.ListPages)
				r.Route("/{page}", func(r chi.Router) {
					r.Get("/", sessionHandler.GetPage)
					r.Get("/image", sessionHandler.GetImage)
					r.Post("/process", sessionHandler.Process)
					r.Post("/figures/{figure}/identify", sessionHandler.Identify)
				})
			})
		})
	})

	return r
}
