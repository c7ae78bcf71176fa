package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ReconcilerConfig controls which payments are re-verified and how hard.
type ReconcilerConfig struct {
	After       time.Duration
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// ReconcileStats summarizes one pass.
type ReconcileStats struct {
	Examined  int
	Finalized int
	Pending   int
	Skipped   int
	Errors    int
}

// Reconciler re-verifies payments that stayed unprocessed because neither
// the callback nor a webhook reached us.
type Reconciler struct {
	repo     payment.Repository
	checkout *CheckoutService
	cfg      ReconcilerConfig
	logger   zerolog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewReconciler(repo payment.Repository, checkout *CheckoutService, cfg ReconcilerConfig, logger zerolog.Logger, metrics *observability.Metrics) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Reconciler{
		repo:     repo,
		checkout: checkout,
		cfg:      cfg,
		logger:   logger.With().Str("component", "reconciler").Logger(),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run reconciles immediately and then on every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("reconciliation pass failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce re-verifies one batch of stale unprocessed payments.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileStats, error) {
	start := r.now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
		}
	}()

	stale, err := r.repo.ListUnprocessed(ctx, start.Add(-r.cfg.After), r.cfg.BatchSize)
	if err != nil {
		return ReconcileStats{}, err
	}

	var finalized, pending, skipped, failed atomic.Int32
	active := r.checkout.Processor().Name()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, p := range stale {
		if p.Processor != active {
			skipped.Add(1)
			r.count("skipped")
			continue
		}
		reference := p.Reference
		g.Go(func() error {
			res, err := r.checkout.Reconcile(gctx, reference)
			switch {
			case err != nil:
				failed.Add(1)
				r.count("error")
				if !errors.Is(err, domainErrors.ErrVerificationFailed) {
					r.logger.Error().Err(err).Str("reference", reference).Msg("reconcile payment")
				}
			case res.Outcome == OutcomePending:
				pending.Add(1)
				r.count("pending")
			default:
				finalized.Add(1)
				r.count(string(res.Outcome))
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := ReconcileStats{
		Examined:  len(stale),
		Finalized: int(finalized.Load()),
		Pending:   int(pending.Load()),
		Skipped:   int(skipped.Load()),
		Errors:    int(failed.Load()),
	}
	if stats.Examined > 0 {
		r.logger.Info().
			Int("examined", stats.Examined).
			Int("finalized", stats.Finalized).
			Int("pending", stats.Pending).
			Int("skipped", stats.Skipped).
			Int("errors", stats.Errors).
			Msg("reconciliation pass complete")
	}
	return stats, nil
}

func (r *Reconciler) count(result string) {
	if r.metrics != nil {
		r.metrics.ReconcileRuns.WithLabelValues(result).Inc()
	}
}
