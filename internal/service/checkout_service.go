package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/pkg/saga"
	"github.com/rs/zerolog"
)

const maxReferenceAttempts = 10

// Outcome describes what a finalization attempt did to the payment record.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeFailed           Outcome = "failed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomePending          Outcome = "pending"
	OutcomeIgnored          Outcome = "ignored"
)

// Finalization sources, used as the metrics label.
const (
	SourceCallback   = "callback"
	SourceWebhook    = "webhook"
	SourceReconciler = "reconciler"
)

// CheckoutConfig holds the checkout settings resolved at startup.
type CheckoutConfig struct {
	CallbackURL     string
	DefaultAmount   float64
	ReferenceLength int
}

// CheckoutService drives a payment from checkout to a terminal state through
// the active processor.
type CheckoutService struct {
	repo      payment.Repository
	processor providers.Processor
	locker    Locker
	cfg       CheckoutConfig
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewCheckoutService(
	repo payment.Repository,
	processor providers.Processor,
	locker Locker,
	cfg CheckoutConfig,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *CheckoutService {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if cfg.ReferenceLength <= 0 {
		cfg.ReferenceLength = payment.DefaultReferenceLength
	}
	return &CheckoutService{
		repo:      repo,
		processor: processor,
		locker:    locker,
		cfg:       cfg,
		logger:    observability.ForProcessor(logger, processor.Name()),
		metrics:   metrics,
	}
}

// Processor returns the active processor.
func (s *CheckoutService) Processor() providers.Processor {
	return s.processor
}

type CheckoutRequest struct {
	Email    string
	Amount   float64
	Metadata map[string]any
}

type CheckoutResult struct {
	Payment          *payment.Payment
	AuthorizationURL string
}

// FinalizeResult reports the record after a callback, webhook or
// reconciliation pass.
type FinalizeResult struct {
	Payment *payment.Payment
	Outcome Outcome
}

// StartCheckout records an unprocessed payment and asks the gateway for an
// authorization URL. The record is removed again if initialization fails.
func (s *CheckoutService) StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	amount := req.Amount
	if amount == 0 {
		amount = s.cfg.DefaultAmount
	}

	reference, err := s.uniqueReference(ctx)
	if err != nil {
		return nil, err
	}
	p, err := payment.NewPayment(req.Email, amount, s.processor.Name(), reference)
	if err != nil {
		return nil, err
	}

	var authURL string
	_, err = saga.New("checkout").
		AddStep(saga.Step{
			Name:    "create-record",
			Execute: func(ctx context.Context) error { return s.repo.Create(ctx, p) },
			Compensate: func(ctx context.Context) error {
				return s.repo.Delete(ctx, p.Reference)
			},
		}).
		AddStep(saga.Step{
			Name: "initialize",
			Execute: func(ctx context.Context) error {
				res := s.processor.InitializePayment(ctx, payment.InitializationRequest{
					Email:       p.Email,
					Amount:      p.Amount,
					Reference:   p.Reference,
					CallbackURL: s.cfg.CallbackURL,
					Metadata:    req.Metadata,
				})
				if !res.OK() {
					return domainErrors.ErrGatewayUnavailable
				}
				authURL = res.AuthorizationURL
				return nil
			},
		}).
		Execute(ctx)
	if err != nil {
		s.countInitialized("failed")
		s.logger.Error().Err(err).Str("reference", p.Reference).Msg("checkout failed")
		return nil, err
	}

	s.countInitialized("ok")
	s.logger.Info().Str("reference", p.Reference).Float64("amount", p.Amount).Msg("checkout started")
	return &CheckoutResult{Payment: p, AuthorizationURL: authURL}, nil
}

// HandleCallback verifies the payment the customer was redirected back with
// and settles the record.
func (s *CheckoutService) HandleCallback(ctx context.Context, reference string) (*FinalizeResult, error) {
	if reference == "" {
		return nil, domainErrors.NewValidationError("reference", "is required")
	}
	return s.verifyAndFinalize(ctx, reference, SourceCallback)
}

// Reconcile re-verifies a payment that never received a terminal outcome.
func (s *CheckoutService) Reconcile(ctx context.Context, reference string) (*FinalizeResult, error) {
	return s.verifyAndFinalize(ctx, reference, SourceReconciler)
}

// HandleWebhook authenticates a webhook delivery and settles the payment it
// refers to. The gateway is asked to confirm the outcome before the record
// changes, so a forged event cannot finalize a payment on its own.
func (s *CheckoutService) HandleWebhook(ctx context.Context, signature string, body []byte) (*FinalizeResult, error) {
	if !s.processor.VerifyEvent(payment.WebhookEvent{Signature: signature, Body: body}) {
		s.countWebhook("invalid_signature")
		s.logger.Warn().Msg("event verification failed")
		return nil, domainErrors.ErrEventVerificationFailed
	}

	event, err := payment.ParseWebhookEvent(signature, body)
	if err != nil {
		s.countWebhook("malformed")
		return nil, err
	}
	payload := s.processor.FormatWebhookPayload(event.Payload)
	log := s.logger.With().Str("event", payload.Event).Str("reference", payload.Reference).Logger()

	if !payload.Status.IsTerminal() {
		s.countWebhook("ignored")
		log.Debug().Msg("ignoring non-terminal webhook event")
		return &FinalizeResult{Outcome: OutcomeIgnored}, nil
	}
	if payload.Reference == "" {
		s.countWebhook("malformed")
		return nil, domainErrors.NewDomainError("malformed_event", "webhook event has no reference", domainErrors.ErrMalformedEvent)
	}

	existing, err := s.repo.GetByReference(ctx, payload.Reference)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPaymentNotFound) {
			s.countWebhook("not_found")
			log.Error().Msg("webhook for unknown payment")
		}
		return nil, err
	}
	if existing.Status.IsTerminal() {
		s.countWebhook("already_processed")
		log.Info().Msg("payment already processed")
		return &FinalizeResult{Payment: existing, Outcome: OutcomeAlreadyProcessed}, nil
	}

	verified := s.processor.VerifyPayment(ctx, payload.Reference)
	if !verified.OK() {
		s.countWebhook("verification_failed")
		return nil, domainErrors.ErrVerificationFailed
	}
	if verified.Status != payload.Status {
		log.Warn().
			Str("event_status", string(payload.Status)).
			Str("verified_status", string(verified.Status)).
			Msg("webhook status disagrees with gateway, using gateway")
	}
	paidAt := verified.PaymentDate
	if paidAt == nil {
		paidAt = payload.PaymentDate
	}

	res, err := s.finalize(ctx, payload.Reference, verified.Status, paidAt, SourceWebhook)
	if err != nil {
		return nil, err
	}
	s.countWebhook(string(res.Outcome))
	return res, nil
}

// GetPayment looks up a payment record by reference.
func (s *CheckoutService) GetPayment(ctx context.Context, reference string) (*payment.Payment, error) {
	return s.repo.GetByReference(ctx, reference)
}

func (s *CheckoutService) verifyAndFinalize(ctx context.Context, reference, source string) (*FinalizeResult, error) {
	verified := s.processor.VerifyPayment(ctx, reference)
	if !verified.OK() {
		s.logger.Error().Str("reference", reference).Str("source", source).Msg("unable to verify payment")
		return nil, domainErrors.ErrVerificationFailed
	}
	return s.finalize(ctx, reference, verified.Status, verified.PaymentDate, source)
}

// finalize applies a gateway outcome under the per-reference lock. A record
// that is already terminal is left untouched.
func (s *CheckoutService) finalize(ctx context.Context, reference string, status payment.TransactionStatus, paidAt *time.Time, source string) (*FinalizeResult, error) {
	var out *FinalizeResult
	log := s.logger.With().Str("reference", reference).Str("source", source).Logger()

	err := s.locker.WithLock(ctx, "payment:"+reference, func(ctx context.Context) error {
		p, err := s.repo.GetByReference(ctx, reference)
		if err != nil {
			if errors.Is(err, domainErrors.ErrPaymentNotFound) {
				log.Error().Msg("payment does not exist")
			}
			return err
		}
		if p.Status.IsTerminal() {
			log.Info().Msg("payment already processed")
			out = &FinalizeResult{Payment: p, Outcome: OutcomeAlreadyProcessed}
			return nil
		}
		if !status.IsTerminal() {
			log.Info().Msg("payment still pending at gateway")
			out = &FinalizeResult{Payment: p, Outcome: OutcomePending}
			return nil
		}

		if err := p.Finalize(status, paidAt); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, p); err != nil {
			if errors.Is(err, domainErrors.ErrPaymentAlreadyProcessed) {
				current, getErr := s.repo.GetByReference(ctx, reference)
				if getErr != nil {
					return getErr
				}
				out = &FinalizeResult{Payment: current, Outcome: OutcomeAlreadyProcessed}
				return nil
			}
			return fmt.Errorf("persist finalized payment: %w", err)
		}

		outcome := OutcomeCompleted
		if p.Status == payment.StatusFailed {
			outcome = OutcomeFailed
		}
		if s.metrics != nil {
			s.metrics.PaymentsFinalized.WithLabelValues(source, string(outcome)).Inc()
		}
		log.Info().Str("status", p.Status.Label()).Msg("payment finalized")
		out = &FinalizeResult{Payment: p, Outcome: outcome}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CheckoutService) uniqueReference(ctx context.Context) (string, error) {
	for range maxReferenceAttempts {
		ref := payment.GenerateReference(s.cfg.ReferenceLength)
		exists, err := s.repo.ExistsReference(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("check reference: %w", err)
		}
		if !exists {
			return ref, nil
		}
	}
	return "", domainErrors.ErrReferenceExhausted
}

func (s *CheckoutService) countInitialized(outcome string) {
	if s.metrics != nil {
		s.metrics.PaymentsInitialized.WithLabelValues(s.processor.Name(), outcome).Inc()
	}
}

func (s *CheckoutService) countWebhook(result string) {
	if s.metrics != nil {
		s.metrics.WebhookEvents.WithLabelValues(s.processor.Name(), result).Inc()
	}
}
