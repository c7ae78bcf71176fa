package providers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/payment"
)

const MockName = "mock"

// mockMaxKnown bounds how many initialized references the mock remembers.
const mockMaxKnown = 10000

// MockProcessor simulates a gateway in memory. It is registered for local
// development and refuses to start in live mode.
type MockProcessor struct {
	name        string
	latency     time.Duration
	failureRate float64 // 0.0 to 1.0
	outcome     payment.TransactionStatus
	verifier    PayloadHMAC
	loc         *time.Location

	mu        sync.Mutex
	initCalls int
	known     map[string]struct{}
	order     []string
}

type MockProcessorOption func(*MockProcessor)

func WithMockLatency(d time.Duration) MockProcessorOption {
	return func(p *MockProcessor) { p.latency = d }
}

// WithMockFailureRate makes that share of initializations fail.
func WithMockFailureRate(rate float64) MockProcessorOption {
	return func(p *MockProcessor) { p.failureRate = rate }
}

// WithMockOutcome sets the status returned by VerifyPayment.
func WithMockOutcome(s payment.TransactionStatus) MockProcessorOption {
	return func(p *MockProcessor) { p.outcome = s }
}

// WithMockSecret sets the key webhook bodies are signed with.
func WithMockSecret(secret string) MockProcessorOption {
	return func(p *MockProcessor) { p.verifier = PayloadHMAC{Secret: secret} }
}

func NewMockProcessor(opts ...MockProcessorOption) *MockProcessor {
	p := &MockProcessor{
		name:     MockName,
		outcome:  payment.Successful,
		verifier: PayloadHMAC{Secret: "mock-secret"},
		loc:      time.UTC,
		known:    make(map[string]struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func newMockFromSettings(s Settings, _ ...Option) (Processor, error) {
	if s.Live {
		return nil, fmt.Errorf("mock processor cannot run in live mode")
	}
	p := NewMockProcessor()
	p.loc = s.location()
	return p, nil
}

func (p *MockProcessor) Name() string            { return p.name }
func (p *MockProcessor) DisplayName() string     { return "Mock" }
func (p *MockProcessor) SignatureHeader() string { return "X-Mock-Signature" }

// Sign returns the signature VerifyEvent accepts for body.
func (p *MockProcessor) Sign(body []byte) string { return p.verifier.Sign(body) }

// InitCalls reports how many initializations reached the simulated gateway.
func (p *MockProcessor) InitCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initCalls
}

func (p *MockProcessor) InitializePayment(ctx context.Context, req payment.InitializationRequest) payment.InitializationResult {
	if err := req.Validate(); err != nil {
		return payment.InitializationResult{}
	}
	if !p.wait(ctx) {
		return payment.InitializationResult{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.initCalls++
	if p.failureRate > 0 && rand.Float64() < p.failureRate {
		return payment.InitializationResult{}
	}
	p.remember(req.Reference)
	return payment.InitializationResult{
		AuthorizationURL: fmt.Sprintf("https://checkout.mock.local/pay/%s", req.Reference),
	}
}

func (p *MockProcessor) VerifyPayment(ctx context.Context, reference string) payment.VerificationResult {
	if reference == "" || !p.wait(ctx) {
		return payment.VerificationResult{}
	}
	p.mu.Lock()
	_, ok := p.known[reference]
	p.mu.Unlock()
	if !ok {
		return payment.VerificationResult{}
	}

	paidAt := time.Now().In(p.loc)
	data := map[string]any{"reference": reference}
	return payment.VerificationResult{
		Status:      p.outcome,
		PaymentDate: &paidAt,
		Reference:   reference,
		Data:        normalizedData(data, p.outcome, reference, &paidAt),
		Raw:         map[string]any{"status": true, "data": data},
	}
}

func (p *MockProcessor) VerifyEvent(event payment.WebhookEvent) bool {
	return p.verifier.Verify(event.Signature, event.Body)
}

// FormatWebhookPayload reads Paystack-shaped events.
func (p *MockProcessor) FormatWebhookPayload(raw map[string]any) payment.WebhookPayload {
	event := stringField(raw, "event")
	status := paystackEvents.lookup(event)
	data, _ := mapField(raw, "data")
	paidAt, _ := parseTimestamp(data["paid_at"], p.loc)
	ref := stringField(data, "reference")
	return payment.WebhookPayload{
		Event:       event,
		Status:      status,
		Reference:   ref,
		PaymentDate: paidAt,
		Data:        normalizedData(data, status, ref, paidAt),
	}
}

// remember records an initialized reference, evicting the oldest once
// mockMaxKnown is reached. Callers hold p.mu.
func (p *MockProcessor) remember(reference string) {
	if _, ok := p.known[reference]; ok {
		return
	}
	if len(p.order) >= mockMaxKnown {
		delete(p.known, p.order[0])
		p.order = p.order[1:]
	}
	p.known[reference] = struct{}{}
	p.order = append(p.order, reference)
}

func (p *MockProcessor) wait(ctx context.Context) bool {
	if p.latency <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(p.latency):
		return true
	case <-ctx.Done():
		return false
	}
}
