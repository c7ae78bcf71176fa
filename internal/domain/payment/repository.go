package payment

import (
	"context"
	"time"
)

// Repository defines the interface for payment record persistence
type Repository interface {
	// Create stores a new payment. A taken reference yields ErrDuplicateReference.
	Create(ctx context.Context, payment *Payment) error

	// GetByReference retrieves a payment by its gateway reference
	GetByReference(ctx context.Context, reference string) (*Payment, error)

	// ExistsReference reports whether a reference is already in use
	ExistsReference(ctx context.Context, reference string) (bool, error)

	// Update persists a finalized payment. It fails with
	// ErrPaymentAlreadyProcessed when the stored record is already terminal.
	Update(ctx context.Context, payment *Payment) error

	// Delete removes a payment that never reached a gateway
	Delete(ctx context.Context, reference string) error

	// ListUnprocessed returns unprocessed payments created before the cutoff, oldest first
	ListUnprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]*Payment, error)
}
