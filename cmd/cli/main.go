package main

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/services"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/di"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ports"
)

func main() {
	root := newRootCommand(openService, os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openService builds the registry from the environment, the same way the server does.
func openService() (ports.TagService, func() error, error) {
	injector := di.NewContainer()
	svc, err := do.Invoke[*services.TagService](injector)
	if err != nil {
		return nil, nil, err
	}
	closer := func() error {
		if errs := injector.Shutdown(); errs != nil {
			return errs
		}
		return nil
	}
	return svc, closer, nil
}
