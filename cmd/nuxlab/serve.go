package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/nuxlab/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nuxlab HTTP server",
	Long: `Start the nuxlab HTTP server with REST API and WebSocket support.

Endpoints:
  GET    /api/labs/{name}      connection details of a lab (404 when absent)
  PUT    /api/labs/{name}      ensure the lab is running  {"template":"...","check":false}
  DELETE /api/labs/{name}      ensure the lab is gone     (?check=true)
  GET    /api/labs/{name}/ws   reconcile with live poll progress
  GET    /api/templates        available templates
  GET    /api/runs             the run journal

Examples:
  nuxlab serve
  nuxlab serve --port 9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.Config.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(a)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		if err := srv.Shutdown(context.Background()); err != nil {
			a.Log.Warn("shutdown", "error", err)
		}
	}()

	if err := srv.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
