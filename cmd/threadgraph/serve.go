package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the chat API over HTTP:

  POST   /chat                {"thread_id": "...", "message": "..."}
  GET    /threads
  GET    /threads/{id}
  DELETE /threads/{id}
  GET    /threads/{id}/events  (SSE, one event per committed turn)
  GET    /health
  GET    /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		addr := app.Config.HTTPAddr
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			addr = v
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           app.HTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("Starting threadgraph server",
				"address", srv.Addr, "store", app.Config.Store, "namespace", app.Engine.Namespace())
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			app.Logger.Info("Shutdown started", "signal", sig.String())

			// Give in-flight turns a deadline to commit.
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				app.Logger.Error("Graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
				return srv.Close()
			}
			app.Logger.Info("Threadgraph server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default HTTP_ADDR or :8080)")
}
