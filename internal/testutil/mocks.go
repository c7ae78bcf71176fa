package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/repository/memory"
)

// --- Payment Repository Mock ---

// MockPaymentRepository wraps the in-memory repository; any Func field that
// is set replaces the corresponding method.
type MockPaymentRepository struct {
	*memory.PaymentRepository

	CreateFunc          func(ctx context.Context, p *payment.Payment) error
	GetByReferenceFunc  func(ctx context.Context, reference string) (*payment.Payment, error)
	ExistsReferenceFunc func(ctx context.Context, reference string) (bool, error)
	UpdateFunc          func(ctx context.Context, p *payment.Payment) error
	DeleteFunc          func(ctx context.Context, reference string) error
	ListUnprocessedFunc func(ctx context.Context, createdBefore time.Time, limit int) ([]*payment.Payment, error)

	mu      sync.Mutex
	deletes []string
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{PaymentRepository: memory.NewPaymentRepository()}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return m.PaymentRepository.Create(ctx, p)
}

func (m *MockPaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, reference)
	}
	return m.PaymentRepository.GetByReference(ctx, reference)
}

func (m *MockPaymentRepository) ExistsReference(ctx context.Context, reference string) (bool, error) {
	if m.ExistsReferenceFunc != nil {
		return m.ExistsReferenceFunc(ctx, reference)
	}
	return m.PaymentRepository.ExistsReference(ctx, reference)
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	return m.PaymentRepository.Update(ctx, p)
}

func (m *MockPaymentRepository) Delete(ctx context.Context, reference string) error {
	m.mu.Lock()
	m.deletes = append(m.deletes, reference)
	m.mu.Unlock()
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, reference)
	}
	return m.PaymentRepository.Delete(ctx, reference)
}

func (m *MockPaymentRepository) ListUnprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]*payment.Payment, error) {
	if m.ListUnprocessedFunc != nil {
		return m.ListUnprocessedFunc(ctx, createdBefore, limit)
	}
	return m.PaymentRepository.ListUnprocessed(ctx, createdBefore, limit)
}

// Deleted returns the references passed to Delete, in call order.
func (m *MockPaymentRepository) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

// --- Processor Stub ---

// StubProcessor is a scriptable providers.Processor. Unset Func fields fall
// back to the zero sentinel results.
type StubProcessor struct {
	NameValue   string
	HeaderValue string

	InitializeFunc func(ctx context.Context, req payment.InitializationRequest) payment.InitializationResult
	VerifyFunc     func(ctx context.Context, reference string) payment.VerificationResult
	VerifyEventFn  func(event payment.WebhookEvent) bool
	FormatFunc     func(raw map[string]any) payment.WebhookPayload

	mu          sync.Mutex
	initCalls   []payment.InitializationRequest
	verifyCalls []string
}

func NewStubProcessor(name string) *StubProcessor {
	return &StubProcessor{NameValue: name, HeaderValue: "X-Stub-Signature"}
}

func (s *StubProcessor) Name() string            { return s.NameValue }
func (s *StubProcessor) DisplayName() string     { return "Stub " + s.NameValue }
func (s *StubProcessor) SignatureHeader() string { return s.HeaderValue }

func (s *StubProcessor) InitializePayment(ctx context.Context, req payment.InitializationRequest) payment.InitializationResult {
	s.mu.Lock()
	s.initCalls = append(s.initCalls, req)
	s.mu.Unlock()
	if s.InitializeFunc != nil {
		return s.InitializeFunc(ctx, req)
	}
	return payment.InitializationResult{}
}

func (s *StubProcessor) VerifyPayment(ctx context.Context, reference string) payment.VerificationResult {
	s.mu.Lock()
	s.verifyCalls = append(s.verifyCalls, reference)
	s.mu.Unlock()
	if s.VerifyFunc != nil {
		return s.VerifyFunc(ctx, reference)
	}
	return payment.VerificationResult{}
}

func (s *StubProcessor) VerifyEvent(event payment.WebhookEvent) bool {
	if s.VerifyEventFn != nil {
		return s.VerifyEventFn(event)
	}
	return false
}

func (s *StubProcessor) FormatWebhookPayload(raw map[string]any) payment.WebhookPayload {
	if s.FormatFunc != nil {
		return s.FormatFunc(raw)
	}
	return payment.WebhookPayload{Status: payment.Unprocessed}
}

// InitCalls returns the initialization requests received so far.
func (s *StubProcessor) InitCalls() []payment.InitializationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]payment.InitializationRequest(nil), s.initCalls...)
}

// VerifyCalls returns the references passed to VerifyPayment.
func (s *StubProcessor) VerifyCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.verifyCalls...)
}
