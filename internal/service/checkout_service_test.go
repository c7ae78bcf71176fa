package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/cassiomorais/paygate/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paidAt = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	svc       *CheckoutService
	repo      *testutil.MockPaymentRepository
	processor *testutil.StubProcessor
	metrics   *observability.Metrics
}

func setupCheckout(t *testing.T) *fixture {
	t.Helper()
	repo := testutil.NewMockPaymentRepository()
	processor := testutil.NewStubProcessor("paystack")
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	svc := NewCheckoutService(repo, processor, NewLocalLocker(), CheckoutConfig{
		CallbackURL:     "https://shop.example.com/callback",
		DefaultAmount:   400,
		ReferenceLength: 8,
	}, zerolog.Nop(), metrics)
	return &fixture{svc: svc, repo: repo, processor: processor, metrics: metrics}
}

func (f *fixture) seed(t *testing.T, reference string) *payment.Payment {
	t.Helper()
	p := testutil.NewTestPayment(reference, "paystack", 400)
	require.NoError(t, f.repo.Create(context.Background(), p))
	return p
}

// --- StartCheckout ---

func TestStartCheckout_Success(t *testing.T) {
	f := setupCheckout(t)
	f.processor.InitializeFunc = func(_ context.Context, req payment.InitializationRequest) payment.InitializationResult {
		return testutil.AuthorizationFor(req.Reference)
	}

	res, err := f.svc.StartCheckout(context.Background(), CheckoutRequest{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Len(t, res.Payment.Reference, 8)
	assert.Equal(t, "https://checkout.example.com/"+res.Payment.Reference, res.AuthorizationURL)

	calls := f.processor.InitCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "a@b.com", calls[0].Email)
	assert.Equal(t, float64(400), calls[0].Amount, "default amount applies")
	assert.Equal(t, res.Payment.Reference, calls[0].Reference)
	assert.Equal(t, "https://shop.example.com/callback", calls[0].CallbackURL)

	stored, err := f.repo.GetByReference(context.Background(), res.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusUnprocessed, stored.Status)
	assert.Equal(t, "paystack", stored.Processor)
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.PaymentsInitialized.WithLabelValues("paystack", "ok")))
}

func TestStartCheckout_GatewayFailureRemovesRecord(t *testing.T) {
	f := setupCheckout(t)

	_, err := f.svc.StartCheckout(context.Background(), CheckoutRequest{Email: "a@b.com", Amount: 250})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayUnavailable)

	deleted := f.repo.Deleted()
	require.Len(t, deleted, 1)
	exists, _ := f.repo.ExistsReference(context.Background(), deleted[0])
	assert.False(t, exists)
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.PaymentsInitialized.WithLabelValues("paystack", "failed")))
}

func TestStartCheckout_InvalidInput(t *testing.T) {
	f := setupCheckout(t)

	_, err := f.svc.StartCheckout(context.Background(), CheckoutRequest{Email: "a@b.com", Amount: -5})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)

	_, err = f.svc.StartCheckout(context.Background(), CheckoutRequest{Amount: 10})
	var vErr *domainErrors.ValidationError
	assert.ErrorAs(t, err, &vErr)

	assert.Empty(t, f.processor.InitCalls())
}

func TestStartCheckout_ReferenceCollisions(t *testing.T) {
	f := setupCheckout(t)
	f.processor.InitializeFunc = func(_ context.Context, req payment.InitializationRequest) payment.InitializationResult {
		return testutil.AuthorizationFor(req.Reference)
	}

	var checks atomic.Int32
	f.repo.ExistsReferenceFunc = func(context.Context, string) (bool, error) {
		return checks.Add(1) < 3, nil
	}
	_, err := f.svc.StartCheckout(context.Background(), CheckoutRequest{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), checks.Load())

	f.repo.ExistsReferenceFunc = func(context.Context, string) (bool, error) { return true, nil }
	_, err = f.svc.StartCheckout(context.Background(), CheckoutRequest{Email: "a@b.com"})
	assert.ErrorIs(t, err, domainErrors.ErrReferenceExhausted)
}

// --- HandleCallback ---

func TestHandleCallback_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		status     payment.TransactionStatus
		outcome    Outcome
		wantStatus payment.PaymentStatus
	}{
		{"successful", payment.Successful, OutcomeCompleted, payment.StatusCompleted},
		{"failed", payment.Failed, OutcomeFailed, payment.StatusFailed},
		{"still pending", payment.Unprocessed, OutcomePending, payment.StatusUnprocessed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupCheckout(t)
			f.seed(t, "REF123")
			f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
				return testutil.Verified(ref, tt.status, paidAt)
			}

			res, err := f.svc.HandleCallback(context.Background(), "REF123")
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.wantStatus, res.Payment.Status)

			stored, _ := f.repo.GetByReference(context.Background(), "REF123")
			assert.Equal(t, tt.wantStatus, stored.Status)
			if tt.status.IsTerminal() {
				assert.True(t, stored.Date.Equal(paidAt))
			}
		})
	}
}

func TestHandleCallback_Idempotent(t *testing.T) {
	f := setupCheckout(t)
	f.seed(t, "REF123")
	f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		return testutil.Verified(ref, payment.Successful, paidAt)
	}

	first, err := f.svc.HandleCallback(context.Background(), "REF123")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, first.Outcome)

	f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		return testutil.Verified(ref, payment.Failed, paidAt.Add(time.Hour))
	}
	second, err := f.svc.HandleCallback(context.Background(), "REF123")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, second.Outcome)
	assert.Equal(t, payment.StatusCompleted, second.Payment.Status)
	assert.True(t, second.Payment.Date.Equal(paidAt))

	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.PaymentsFinalized.WithLabelValues(SourceCallback, "completed")))
}

func TestHandleCallback_Errors(t *testing.T) {
	f := setupCheckout(t)

	_, err := f.svc.HandleCallback(context.Background(), "")
	var vErr *domainErrors.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = f.svc.HandleCallback(context.Background(), "REF123")
	assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed)

	f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		return testutil.Verified(ref, payment.Successful, paidAt)
	}
	_, err = f.svc.HandleCallback(context.Background(), "UNKNOWN")
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestHandleCallback_StorageConflictIsAlreadyProcessed(t *testing.T) {
	f := setupCheckout(t)
	f.seed(t, "REF123")
	f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		return testutil.Verified(ref, payment.Successful, paidAt)
	}
	f.repo.UpdateFunc = func(context.Context, *payment.Payment) error {
		return domainErrors.ErrPaymentAlreadyProcessed
	}

	res, err := f.svc.HandleCallback(context.Background(), "REF123")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
}

func TestHandleCallback_StorageError(t *testing.T) {
	f := setupCheckout(t)
	f.seed(t, "REF123")
	f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		return testutil.Verified(ref, payment.Successful, paidAt)
	}
	dbDown := errors.New("db down")
	f.repo.UpdateFunc = func(context.Context, *payment.Payment) error { return dbDown }

	_, err := f.svc.HandleCallback(context.Background(), "REF123")
	assert.ErrorIs(t, err, dbDown)
}

// --- HandleWebhook ---

func signedWebhook(f *fixture, status payment.TransactionStatus, reference string) {
	f.processor.VerifyEventFn = func(ev payment.WebhookEvent) bool { return ev.Signature == "good" }
	f.processor.FormatFunc = func(raw map[string]any) payment.WebhookPayload {
		return payment.WebhookPayload{Event: "charge.success", Status: status, Reference: reference}
	}
}

const webhookBody = `{"event":"charge.success","data":{"reference":"REF123"}}`

func TestHandleWebhook_FinalizesAfterReverification(t *testing.T) {
	f := setupCheckout(t)
	f.seed(t, "REF123")
	signedWebhook(f, payment.Successful, "REF123")
	f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		return testutil.Verified(ref, payment.Successful, paidAt)
	}

	res, err := f.svc.HandleWebhook(context.Background(), "good", []byte(webhookBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, []string{"REF123"}, f.processor.VerifyCalls())
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.PaymentsFinalized.WithLabelValues(SourceWebhook, "completed")))
}

func TestHandleWebhook_GatewayStatusWins(t *testing.T) {
	f := setupCheckout(t)
	f.seed(t, "REF123")
	signedWebhook(f, payment.Successful, "REF123")
	f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		return testutil.Verified(ref, payment.Failed, paidAt)
	}

	res, err := f.svc.HandleWebhook(context.Background(), "good", []byte(webhookBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestHandleWebhook_Idempotent(t *testing.T) {
	f := setupCheckout(t)
	f.seed(t, "REF123")
	signedWebhook(f, payment.Successful, "REF123")
	f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		return testutil.Verified(ref, payment.Successful, paidAt)
	}

	_, err := f.svc.HandleWebhook(context.Background(), "good", []byte(webhookBody))
	require.NoError(t, err)
	res, err := f.svc.HandleWebhook(context.Background(), "good", []byte(webhookBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
	assert.Len(t, f.processor.VerifyCalls(), 1, "terminal records skip the gateway")
}

func TestHandleWebhook_Rejections(t *testing.T) {
	f := setupCheckout(t)
	f.seed(t, "REF123")
	signedWebhook(f, payment.Successful, "REF123")

	_, err := f.svc.HandleWebhook(context.Background(), "bad", []byte(webhookBody))
	assert.ErrorIs(t, err, domainErrors.ErrEventVerificationFailed)

	_, err = f.svc.HandleWebhook(context.Background(), "good", []byte("{not json"))
	assert.ErrorIs(t, err, domainErrors.ErrMalformedEvent)

	_, err = f.svc.HandleWebhook(context.Background(), "good", []byte(webhookBody))
	assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed, "re-verification sentinel")

	stored, _ := f.repo.GetByReference(context.Background(), "REF123")
	assert.Equal(t, payment.StatusUnprocessed, stored.Status)
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.WebhookEvents.WithLabelValues("paystack", "invalid_signature")))
}

func TestHandleWebhook_UnknownPayment(t *testing.T) {
	f := setupCheckout(t)
	signedWebhook(f, payment.Successful, "MISSING")

	_, err := f.svc.HandleWebhook(context.Background(), "good", []byte(webhookBody))
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
	assert.Empty(t, f.processor.VerifyCalls())
}

func TestHandleWebhook_NonTerminalEventIgnored(t *testing.T) {
	f := setupCheckout(t)
	f.seed(t, "REF123")
	signedWebhook(f, payment.Unprocessed, "REF123")

	res, err := f.svc.HandleWebhook(context.Background(), "good", []byte(`{"event":"transfer.success"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Empty(t, f.processor.VerifyCalls())
}

func TestHandleWebhook_MissingReference(t *testing.T) {
	f := setupCheckout(t)
	signedWebhook(f, payment.Successful, "")

	_, err := f.svc.HandleWebhook(context.Background(), "good", []byte(`{"event":"charge.success"}`))
	assert.ErrorIs(t, err, domainErrors.ErrMalformedEvent)
}

// The callback and the webhook race for the same reference; exactly one of
// them finalizes.
func TestFinalize_CallbackAndWebhookRace(t *testing.T) {
	f := setupCheckout(t)
	f.seed(t, "REF123")
	signedWebhook(f, payment.Successful, "REF123")
	f.processor.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		time.Sleep(5 * time.Millisecond)
		return testutil.Verified(ref, payment.Successful, paidAt)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []Outcome
	)
	record := func(res *FinalizeResult, err error) {
		defer wg.Done()
		if !assert.NoError(t, err) {
			return
		}
		mu.Lock()
		outcomes = append(outcomes, res.Outcome)
		mu.Unlock()
	}
	for range 5 {
		wg.Add(2)
		go func() { record(f.svc.HandleCallback(context.Background(), "REF123")) }()
		go func() { record(f.svc.HandleWebhook(context.Background(), "good", []byte(webhookBody))) }()
	}
	wg.Wait()

	completed := 0
	for _, o := range outcomes {
		if o == OutcomeCompleted {
			completed++
		} else {
			assert.Equal(t, OutcomeAlreadyProcessed, o)
		}
	}
	assert.Equal(t, 1, completed)
}

func TestGetPayment(t *testing.T) {
	f := setupCheckout(t)
	seeded := f.seed(t, "REF123")

	got, err := f.svc.GetPayment(context.Background(), "REF123")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)

	_, err = f.svc.GetPayment(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}
