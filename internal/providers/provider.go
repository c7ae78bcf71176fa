package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Processor is the uniform contract every payment gateway adapter satisfies.
//
// The gateway-facing operations never return errors. A failed initialization
// is reported as an empty InitializationResult and a failed verification as
// an empty VerificationResult, with the cause logged by the adapter.
type Processor interface {
	// Name returns the registry key, e.g. "paystack".
	Name() string
	// DisplayName returns a human readable label.
	DisplayName() string
	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string

	InitializePayment(ctx context.Context, req payment.InitializationRequest) payment.InitializationResult
	VerifyPayment(ctx context.Context, reference string) payment.VerificationResult
	VerifyEvent(event payment.WebhookEvent) bool
	FormatWebhookPayload(raw map[string]any) payment.WebhookPayload
}

// Settings carries the configuration an adapter needs. It is resolved once at
// startup and never re-read.
type Settings struct {
	UseCallback bool
	Live        bool
	Location    *time.Location
	Timeout     time.Duration

	PaystackSecretKey string

	CredoPublicKey    string
	CredoSecretKey    string
	CredoServiceCode  string
	CredoWebhookToken string
	CredoBusinessCode string

	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

type options struct {
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *observability.Metrics
	baseURL    string
}

// Option injects a runtime dependency into an adapter.
type Option func(*options)

// WithHTTPClient shares one client across adapters.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBaseURL points an adapter at a different API host.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func buildOptions(s Settings, opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.httpClient == nil {
		o.httpClient = NewHTTPClient(s.Timeout)
	}
	return o
}
