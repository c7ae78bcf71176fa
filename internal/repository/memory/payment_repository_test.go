package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayment(t *testing.T, ref string) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment("a@b.com", 400, "paystack", ref)
	require.NoError(t, err)
	return p
}

func TestPaymentRepository_CreateAndGet(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	p := newPayment(t, "REF123")

	require.NoError(t, repo.Create(ctx, p))
	assert.ErrorIs(t, repo.Create(ctx, newPayment(t, "REF123")), domainErrors.ErrDuplicateReference)

	got, err := repo.GetByReference(ctx, "REF123")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	got.Email = "changed@b.com"
	again, _ := repo.GetByReference(ctx, "REF123")
	assert.Equal(t, "a@b.com", again.Email, "returned records are copies")

	_, err = repo.GetByReference(ctx, "NOPE")
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)

	exists, err := repo.ExistsReference(ctx, "REF123")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPaymentRepository_UpdateOnlyOnce(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPayment(t, "REF123")))

	first, _ := repo.GetByReference(ctx, "REF123")
	second, _ := repo.GetByReference(ctx, "REF123")

	require.NoError(t, first.Finalize(payment.Successful, nil))
	require.NoError(t, second.Finalize(payment.Failed, nil))

	require.NoError(t, repo.Update(ctx, first))
	assert.ErrorIs(t, repo.Update(ctx, second), domainErrors.ErrPaymentAlreadyProcessed)

	stored, _ := repo.GetByReference(ctx, "REF123")
	assert.Equal(t, payment.StatusCompleted, stored.Status)

	assert.ErrorIs(t, repo.Update(ctx, newPayment(t, "MISSING")), domainErrors.ErrPaymentNotFound)
}

func TestPaymentRepository_ConcurrentUpdates(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPayment(t, "REF123")))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _ := repo.GetByReference(ctx, "REF123")
			if err := p.Finalize(payment.Successful, nil); err != nil {
				return
			}
			if repo.Update(ctx, p) == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)
}

func TestPaymentRepository_Delete(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPayment(t, "REF123")))

	require.NoError(t, repo.Delete(ctx, "REF123"))
	assert.ErrorIs(t, repo.Delete(ctx, "REF123"), domainErrors.ErrPaymentNotFound)
	exists, _ := repo.ExistsReference(ctx, "REF123")
	assert.False(t, exists)
}

func TestPaymentRepository_ListUnprocessed(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, ref := range []string{"C", "A", "B", "D"} {
		p := newPayment(t, ref)
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, p))
	}
	done, _ := repo.GetByReference(ctx, "D")
	require.NoError(t, done.Finalize(payment.Failed, nil))
	require.NoError(t, repo.Update(ctx, done))

	got, err := repo.ListUnprocessed(ctx, time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{got[0].Reference, got[1].Reference, got[2].Reference})

	got, _ = repo.ListUnprocessed(ctx, time.Now(), 2)
	assert.Len(t, got, 2)

	got, _ = repo.ListUnprocessed(ctx, base.Add(90*time.Second), 10)
	assert.Len(t, got, 2)
}
