// Package server wires the HTTP surface together and runs it.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/umarovb/agromap-core/internal/api"
	"github.com/umarovb/agromap-core/internal/core/config"
	"github.com/umarovb/agromap-core/internal/core/health"
	"github.com/umarovb/agromap-core/internal/core/middleware"
)

type Options struct {
	// PromHandler, when set, is mounted at cfg.MetricsPath on the main
	// listener. A separate metrics listener can be used instead.
	PromHandler http.Handler
	Readiness   health.ReadinessReporter
}

// Run serves until the context is canceled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h *api.Handler, opts Options) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if opts.Readiness != nil {
		r.Get("/readyz", health.Readiness(opts.Readiness))
	}
	if opts.PromHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Get(path, opts.PromHandler.ServeHTTP)
	}

	h.Routes(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
