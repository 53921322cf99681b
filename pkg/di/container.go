// Package di wires the phone-tags components together.
package di

import (
	"fmt"

	"github.com/samber/do/v2"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, ProvideConfig)
	do.Provide(injector, ProvideLogger)

	// Storage and services
	do.Provide(injector, ProvideStore)
	do.Provide(injector, ProvideTagService)

	// HTTP
	do.Provide(injector, ProvideRateLimiter)
	do.Provide(injector, ProvideHTTPServer)

	return injector
}

// Bootstrap starts the HTTP server and everything it depends on.
func Bootstrap(injector do.Injector) error {
	if _, err := do.Invoke[*HTTPServerHandle](injector); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}
