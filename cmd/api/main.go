package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/paygate/internal/bootstrap"
	"github.com/cassiomorais/paygate/internal/controller"
	"github.com/cassiomorais/paygate/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "paygate-api", "paygate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	router := controller.NewRouter(controller.RouterDeps{
		Checkout:     app.Checkout,
		Catalog:      app.Registry,
		HealthChecks: app.HealthChecks,
		Metrics:      app.Metrics,
		Logger:       app.Logger,
		ServiceName:  "paygate-api",
		Server:       app.Config.Server,
	})

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// The in-memory store is private to this process, so the reconciler has
	// to run here instead of in its own binary.
	if app.Config.Storage.Driver == "memory" {
		reconciler := service.NewReconciler(app.Payments, app.Checkout, reconcilerConfig(app), app.Logger, app.Metrics)
		g.Go(func() error { return reconciler.Run(gCtx) })
	}

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Server exited with error")
		return
	}
	app.Logger.Info().Msg("Server exited")
}

func reconcilerConfig(app *bootstrap.App) service.ReconcilerConfig {
	return service.ReconcilerConfig{
		After:       app.Config.Payment.ReconcileAfter,
		Interval:    app.Config.Payment.ReconcileInterval,
		BatchSize:   app.Config.Payment.ReconcileBatch,
		Concurrency: app.Config.Payment.ReconcileConcurrency,
	}
}
