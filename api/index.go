package handler

import (
	"net/http"
	"os"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/config"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/phone"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/services"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/logger"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ratelimit"
)

var mux http.Handler

func init() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Writer:      os.Stderr,
		Environment: cfg.AppEnv,
		Level:       logger.ParseLevel(cfg.LogLevel),
	})

	// Note: On Vercel, a local file database is ephemeral; use a libsql:// URL in DATABASE_URL
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}

	normalizer, err := phone.NewNormalizer(cfg.CountryCode)
	if err != nil {
		panic(err)
	}

	service := services.NewTagService(repo, normalizer, log)
	// The limiter lives as long as the function instance.
	limiter := ratelimit.PerMinute(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	mux = handler.NewRouter(cfg, service, limiter, log)
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
