package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/samber/do/v2"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/config"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/phone"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/services"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/logger"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// ProvideConfig loads and validates configuration from the environment.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ProvideLogger provides the application logger. Logs go to stderr so that
// CLI output on stdout stays clean.
func ProvideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return logger.New(logger.Config{
		Writer:      os.Stderr,
		Environment: cfg.AppEnv,
		Level:       logger.ParseLevel(cfg.LogLevel),
	}), nil
}

// StoreHandle wraps the repository with shutdown capability.
type StoreHandle struct {
	*sqlite.SQLiteRepository
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the tag store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	log.Info("Database initialized", "remote", sqlite.IsRemote(cfg.DatabaseURL))
	return &StoreHandle{SQLiteRepository: repo}, nil
}

// ProvideTagService provides the registry service.
func ProvideTagService(i do.Injector) (*services.TagService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	store := do.MustInvoke[*StoreHandle](i)

	normalizer, err := phone.NewNormalizer(cfg.CountryCode)
	if err != nil {
		return nil, err
	}
	return services.NewTagService(store.SQLiteRepository, normalizer, log), nil
}

// RateLimiterHandle stops the limiter's cleanup goroutine on shutdown.
type RateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideRateLimiter provides the per-client API rate limiter.
func ProvideRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return &RateLimiterHandle{
		KeyedRateLimiter: ratelimit.PerMinute(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
	}, nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer builds the router and starts serving in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	service := do.MustInvoke[*services.TagService](i)
	limiter := do.MustInvoke[*RateLimiterHandle](i)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(cfg, service, limiter.KeyedRateLimiter, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
