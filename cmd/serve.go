package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// serveAddr overrides server.addr from the configuration.
var serveAddr string

// serveCmd runs the release API. Other relctl commands reach it with
// --server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the release API over HTTP",
	Long: `Serve the release API over HTTP until interrupted.

Endpoints:
  POST /v1/releases                       run a release (JSON or application/yaml body)
  GET  /v1/releases/{id}                  get a release
  GET  /v1/namespaces/{ns}/current        last known good release
  GET  /v1/namespaces/{ns}/releases       release history
  POST /v1/namespaces/{ns}/abandon        abandon the in-flight release
  GET  /healthz                           liveness

A release started over HTTP keeps running when the client disconnects; only
its deadline (?timeout=15m) cancels it.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	application, err := openApplication(newAppConfig())
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return application.Serve(ctx, serveAddr)
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from the configuration, 127.0.0.1:8085)")
}
