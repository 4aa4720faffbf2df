package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/fistfulayen/ubtrippin-sub001/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API, /metrics and, unless disabled, the delivery loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.close()

		r := chi.NewRouter()
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := a.store.Ping(r.Context()); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		r.Mount("/", api.NewHandler(a.hooks, a.logger))

		srv := &http.Server{
			Addr:              a.cfg.HTTP.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		if a.cfg.HTTP.Runner {
			a.hooks.Start(ctx)
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("http server listening", "addr", srv.Addr, "runner", a.cfg.HTTP.Runner)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err = <-errCh:
		}

		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Error("http shutdown", "error", shutdownErr)
		}
		if a.cfg.HTTP.Runner {
			if stopErr := a.hooks.Stop(shutdownCtx); stopErr != nil {
				a.logger.Error("runner stop", "error", stopErr)
			}
		}
		return err
	},
}
