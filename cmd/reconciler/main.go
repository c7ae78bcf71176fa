package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/paygate/internal/bootstrap"
	"github.com/cassiomorais/paygate/internal/service"
)

func main() {
	once := flag.Bool("once", false, "run a single reconciliation pass and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "paygate-reconciler", "paygate_reconciler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Config.Storage.Driver == "memory" {
		app.Logger.Warn().Msg("In-memory storage is per process; the reconciler will find nothing to do")
	}

	reconciler := service.NewReconciler(app.Payments, app.Checkout, service.ReconcilerConfig{
		After:       app.Config.Payment.ReconcileAfter,
		Interval:    app.Config.Payment.ReconcileInterval,
		BatchSize:   app.Config.Payment.ReconcileBatch,
		Concurrency: app.Config.Payment.ReconcileConcurrency,
	}, app.Logger, app.Metrics)

	if *once {
		stats, err := reconciler.RunOnce(ctx)
		if err != nil {
			app.Logger.Error().Err(err).Msg("Reconciliation failed")
			app.Close()
			os.Exit(1)
		}
		app.Logger.Info().Int("examined", stats.Examined).Int("finalized", stats.Finalized).Msg("Reconciliation done")
		return
	}

	app.Logger.Info().
		Dur("interval", app.Config.Payment.ReconcileInterval).
		Dur("after", app.Config.Payment.ReconcileAfter).
		Msg("Reconciler started")
	if err := reconciler.Run(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Reconciler error")
	}
	app.Logger.Info().Msg("Reconciler exited")
}
