package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"relctl/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

// Server serves the API until its context is cancelled.
type Server struct {
	server   *http.Server
	listener net.Listener
}

// Listen binds addr. Use Addr to learn the port when addr ends in ":0".
func Listen(addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Server{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is cancelled, then shuts down gracefully, giving
// in-flight requests shutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info(subsystem, "Serving release API on %s", s.Addr())
		errCh <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info(subsystem, "Stopping release API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.Error(subsystem, err, "Error shutting down API server")
		return err
	}
	return nil
}
