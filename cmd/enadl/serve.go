package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/italolelis/enadl/internal/http/rest"
	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/metadata"
	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/telemetry"
	"github.com/italolelis/enadl/internal/workdir"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve <project>",
		Short: "Serve the tracking table and metrics over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logctx.LoggerFromContext(ctx)
			l := a.layout(args[0])

			store, err := a.openStore(ctx, l)
			if err != nil {
				return err
			}
			defer store.Close()

			// Make a channel to listen for errors coming from the listener. Use a
			// buffered channel so the goroutine can exit if we don't collect this error.
			serverErrors := make(chan error, 1)

			server := a.newServer(ctx, l, store)

			go func() {
				logger.InfoContext(ctx, "initializing API support", "host", a.cfg.Web.BindAddress)
				serverErrors <- server.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
				logger.InfoContext(ctx, "start shutdown")

				// Give outstanding requests a deadline for completion.
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Web.ShutdownTimeout)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.ErrorContext(ctx, "failed to gracefully shutdown the server", "err", err)

					if err = server.Close(); err != nil {
						return fmt.Errorf("could not stop server gracefully: %w", err)
					}
				}

				if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}

				return nil
			}
		},
	}
}

func (a *app) newServer(ctx context.Context, l workdir.Layout, store storage.Store) *http.Server {
	return &http.Server{
		Addr:         a.cfg.Web.BindAddress,
		ReadTimeout:  a.cfg.Web.ReadTimeout,
		WriteTimeout: a.cfg.Web.WriteTimeout,
		Handler:      newRouter(l, store, a.tel),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

// newRouter mounts the status API, health check and metrics behind the request middleware.
func newRouter(l workdir.Layout, store storage.Store, tel *telemetry.Telemetry) http.Handler {
	expected := 0
	if meta, err := metadata.LoadFile(l.MetadataPath()); err == nil {
		batch, _ := meta.FileEntries(l.RawDir())
		expected = len(batch)
	}

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", tel.Handler())
	r.Mount("/api", rest.NewStatusHandler(l.Project, store, expected).Routes())

	return r
}
