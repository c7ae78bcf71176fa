package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/service"
	"github.com/cassiomorais/paygate/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paidAt = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type apiFixture struct {
	router    http.Handler
	repo      *testutil.MockPaymentRepository
	processor providers.Processor
}

func newAPI(t *testing.T, processor providers.Processor) *apiFixture {
	t.Helper()
	repo := testutil.NewMockPaymentRepository()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	checkout := service.NewCheckoutService(repo, processor, service.NewLocalLocker(), service.CheckoutConfig{
		CallbackURL:   "https://shop.example.com/api/v1/payments/callback",
		DefaultAmount: 400,
	}, zerolog.Nop(), metrics)

	router := NewRouter(RouterDeps{
		Checkout:    checkout,
		Catalog:     providers.DefaultRegistry(),
		Metrics:     metrics,
		Gatherer:    reg,
		Logger:      zerolog.Nop(),
		ServiceName: "paygate-test",
		Server: config.ServerConfig{
			RateLimit: 1000,
			CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
	})
	return &apiFixture{router: router, repo: repo, processor: processor}
}

func (f *apiFixture) do(t *testing.T, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) seed(t *testing.T, reference string) {
	t.Helper()
	require.NoError(t, f.repo.Create(context.Background(), testutil.NewTestPayment(reference, f.processor.Name(), 400)))
}

// --- Checkout ---

func TestCheckout_Created(t *testing.T) {
	stub := testutil.NewStubProcessor("paystack")
	stub.InitializeFunc = func(_ context.Context, req payment.InitializationRequest) payment.InitializationResult {
		return testutil.AuthorizationFor(req.Reference)
	}
	f := newAPI(t, stub)

	w := f.do(t, http.MethodPost, "/api/v1/checkout", []byte(`{"email":"a@b.com","amount":400}`), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Reference, payment.DefaultReferenceLength)
	assert.Equal(t, "https://checkout.example.com/"+resp.Reference, resp.AuthorizationURL)
	assert.Equal(t, 400.0, resp.Amount)
	assert.Equal(t, "paystack", resp.Processor)
}

func TestCheckout_ValidationError(t *testing.T) {
	stub := testutil.NewStubProcessor("paystack")
	f := newAPI(t, stub)

	w := f.do(t, http.MethodPost, "/api/v1/checkout", []byte(`{"email":"nope"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
	assert.Empty(t, stub.InitCalls())
}

func TestCheckout_GatewaySentinel(t *testing.T) {
	stub := testutil.NewStubProcessor("paystack")
	f := newAPI(t, stub)

	w := f.do(t, http.MethodPost, "/api/v1/checkout", []byte(`{"email":"a@b.com"}`), nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Cannot process payment at the moment.", resp.Error)

	require.Len(t, f.repo.Deleted(), 1)
	exists, _ := f.repo.ExistsReference(context.Background(), f.repo.Deleted()[0])
	assert.False(t, exists)
}

// --- Callback ---

func TestCallback(t *testing.T) {
	tests := []struct {
		name       string
		reference  string
		verify     func(context.Context, string) payment.VerificationResult
		wantStatus int
		wantBody   string
	}{
		{
			name:      "completed",
			reference: "REF123",
			verify: func(_ context.Context, ref string) payment.VerificationResult {
				return testutil.Verified(ref, payment.Successful, paidAt)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"outcome":"completed"`,
		},
		{
			name:      "pending",
			reference: "REF123",
			verify: func(_ context.Context, ref string) payment.VerificationResult {
				return testutil.Verified(ref, payment.Unprocessed, paidAt)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"outcome":"pending"`,
		},
		{
			name:      "unknown reference",
			reference: "MISSING",
			verify: func(_ context.Context, ref string) payment.VerificationResult {
				return testutil.Verified(ref, payment.Successful, paidAt)
			},
			wantStatus: http.StatusNotFound,
			wantBody:   "Payment does not exist",
		},
		{
			name:       "verification sentinel",
			reference:  "REF123",
			wantStatus: http.StatusBadGateway,
			wantBody:   "Unable to verify payment.",
		},
		{
			name:       "missing reference",
			reference:  "",
			wantStatus: http.StatusBadRequest,
			wantBody:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := testutil.NewStubProcessor("paystack")
			stub.VerifyFunc = tt.verify
			f := newAPI(t, stub)
			f.seed(t, "REF123")

			w := f.do(t, http.MethodGet, "/api/v1/payments/callback?reference="+tt.reference, nil, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestCallback_SecondCallIsNoop(t *testing.T) {
	stub := testutil.NewStubProcessor("paystack")
	stub.VerifyFunc = func(_ context.Context, ref string) payment.VerificationResult {
		return testutil.Verified(ref, payment.Failed, paidAt)
	}
	f := newAPI(t, stub)
	f.seed(t, "REF123")

	first := f.do(t, http.MethodGet, "/api/v1/payments/callback?reference=REF123", nil, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), `"outcome":"failed"`)

	second := f.do(t, http.MethodGet, "/api/v1/payments/callback?reference=REF123", nil, nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `"outcome":"already_processed"`)
	assert.Contains(t, second.Body.String(), `"status":"Failed"`)
}

// --- Webhook ---

func TestWebhook_MockProcessorFlow(t *testing.T) {
	mock := providers.NewMockProcessor(providers.WithMockOutcome(payment.Successful))
	f := newAPI(t, mock)

	w := f.do(t, http.MethodPost, "/api/v1/checkout", []byte(`{"email":"a@b.com","amount":400}`), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var checkout CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &checkout))

	body := []byte(`{"event":"charge.success","data":{"reference":"` + checkout.Reference + `"}}`)
	header := http.Header{mock.SignatureHeader(): {mock.Sign(body)}}

	w = f.do(t, http.MethodPost, "/api/v1/payments/webhook", body, header)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Webhook processed successfully", w.Body.String())

	w = f.do(t, http.MethodGet, "/api/v1/payments/"+checkout.Reference, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"Completed"`)

	// Redelivery is acknowledged without touching the record again.
	w = f.do(t, http.MethodPost, "/api/v1/payments/webhook", body, header)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_Rejections(t *testing.T) {
	mock := providers.NewMockProcessor()
	f := newAPI(t, mock)
	f.seed(t, "REF123")

	body := []byte(`{"event":"charge.success","data":{"reference":"REF123"}}`)

	w := f.do(t, http.MethodPost, "/api/v1/payments/webhook", body, http.Header{mock.SignatureHeader(): {"deadbeef"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Event verification failed", w.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/payments/webhook", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	garbage := []byte(`not json`)
	w = f.do(t, http.MethodPost, "/api/v1/payments/webhook", garbage, http.Header{mock.SignatureHeader(): {mock.Sign(garbage)}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unknown := []byte(`{"event":"charge.success","data":{"reference":"NOPE"}}`)
	w = f.do(t, http.MethodPost, "/api/v1/payments/webhook", unknown, http.Header{mock.SignatureHeader(): {mock.Sign(unknown)}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Payment does not exist", w.Body.String())

	// REF123 was never initialized at the mock gateway, so re-verification
	// fails and the gateway is asked to redeliver.
	w = f.do(t, http.MethodPost, "/api/v1/payments/webhook", body, http.Header{mock.SignatureHeader(): {mock.Sign(body)}})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	ignored := []byte(`{"event":"transfer.success","data":{}}`)
	w = f.do(t, http.MethodPost, "/api/v1/payments/webhook", ignored, http.Header{mock.SignatureHeader(): {mock.Sign(ignored)}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	mock := providers.NewMockProcessor()
	f := newAPI(t, mock)

	body := []byte(`{"pad":"` + strings.Repeat("x", maxWebhookBody) + `"}`)
	w := f.do(t, http.MethodPost, "/api/v1/payments/webhook", body, http.Header{mock.SignatureHeader(): {mock.Sign(body)}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Lookup ---

func TestGetPayment(t *testing.T) {
	f := newAPI(t, testutil.NewStubProcessor("paystack"))
	f.seed(t, "REF123")

	w := f.do(t, http.MethodGet, "/api/v1/payments/REF123", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "REF123", resp.Reference)
	assert.Equal(t, "Unprocessed", resp.Status)

	w = f.do(t, http.MethodGet, "/api/v1/payments/NOPE", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessors(t *testing.T) {
	f := newAPI(t, providers.NewMockProcessor())

	w := f.do(t, http.MethodGet, "/api/v1/processors", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ProcessorsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ProcessorInfo{Name: "mock", DisplayName: "Mock"}, resp.Active)

	names := make([]string, 0, len(resp.Supported))
	for _, p := range resp.Supported {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"credo", "mock", "paystack"}, names)
}
