package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/config"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ports"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ratelimit"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/validation"
)

// NewRouter creates and configures the main application router.
// The caller owns limiter and stops it on shutdown.
func NewRouter(cfg *config.Config, service ports.TagService, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) http.Handler {
	h := NewTagHandler(service, validation.New(), logger, cfg.ImportMaxBytes)
	mw := NewMiddleware(cfg, limiter, logger)
	authHandler := NewAuthHandler(cfg, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(mw.RealIP)
	r.Use(mw.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: !allowsAnyOrigin(cfg.CORSOrigins),
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/healthz", h.Health)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Get("/logout", authHandler.Logout)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit)

		r.Get("/tags", h.List)
		r.Post("/tags", h.Add)
		r.Get("/tags/{id}", h.Get)
		r.Post("/tags/{id}/report", h.Report)
		r.Post("/report", h.ReportByBody)
		r.Get("/search", h.Search)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(mw.AuthMiddleware)
			r.Delete("/tags", h.Remove)
			r.Post("/import", h.Import)
			r.Get("/export", h.Export)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

func allowsAnyOrigin(origins []string) bool {
	return len(origins) == 0 || (len(origins) == 1 && origins[0] == "*")
}
