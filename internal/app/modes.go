package app

import (
	"context"

	"relctl/internal/api"
	"relctl/pkg/logging"
)

// Serve runs the HTTP API on addr, or on the configured server address when
// addr is empty, until ctx is cancelled.
func (a *Application) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.config.RelctlConfig.Server.Addr
	}

	srv, err := api.Listen(addr, api.NewRouter(a.services.Orchestrator, api.DefaultRunTimeout))
	if err != nil {
		return err
	}
	if err := srv.Serve(ctx); err != nil {
		logging.Error("Serve", err, "API server stopped")
		return err
	}
	return nil
}
