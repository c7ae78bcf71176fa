// Package memory keeps payment records in process memory. It backs local
// development and tests; records do not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]payment.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{payments: make(map[string]payment.Payment)}
}

func (r *PaymentRepository) Create(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.Reference]; ok {
		return domainErrors.ErrDuplicateReference
	}
	r.payments[p.Reference] = *p
	return nil
}

func (r *PaymentRepository) GetByReference(_ context.Context, reference string) (*payment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[reference]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return &p, nil
}

func (r *PaymentRepository) ExistsReference(_ context.Context, reference string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.payments[reference]
	return ok, nil
}

func (r *PaymentRepository) Update(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.payments[p.Reference]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	if stored.Status.IsTerminal() {
		return domainErrors.ErrPaymentAlreadyProcessed
	}
	stored.Status = p.Status
	stored.Date = p.Date
	stored.UpdatedAt = p.UpdatedAt
	r.payments[p.Reference] = stored
	return nil
}

func (r *PaymentRepository) Delete(_ context.Context, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[reference]; !ok {
		return domainErrors.ErrPaymentNotFound
	}
	delete(r.payments, reference)
	return nil
}

func (r *PaymentRepository) ListUnprocessed(_ context.Context, createdBefore time.Time, limit int) ([]*payment.Payment, error) {
	r.mu.RLock()
	var out []*payment.Payment
	for _, p := range r.payments {
		if p.Status == payment.StatusUnprocessed && p.CreatedAt.Before(createdBefore) {
			cp := p
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
