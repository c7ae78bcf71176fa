package payment

import (
	"strings"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/google/uuid"
)

// DefaultReferenceLength matches what the checkout flow hands to gateways.
const DefaultReferenceLength = 8

const maxReferenceLength = 64

// Payment is the locally stored record that a gateway reference points to.
type Payment struct {
	ID        uuid.UUID
	Reference string
	Email     string
	Amount    float64
	Status    PaymentStatus
	Processor string
	Date      time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPayment creates an unprocessed payment record
func NewPayment(email string, amount float64, processor, reference string) (*Payment, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, errors.NewValidationError("email", "is required")
	}
	if reference == "" {
		return nil, errors.ErrInvalidInput
	}

	now := time.Now()
	return &Payment{
		ID:        uuid.New(),
		Reference: reference,
		Email:     email,
		Amount:    amount,
		Status:    StatusUnprocessed,
		Processor: processor,
		Date:      now,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Finalize applies a terminal gateway outcome to the record. It succeeds at
// most once; later calls return ErrPaymentAlreadyProcessed.
func (p *Payment) Finalize(outcome TransactionStatus, paidAt *time.Time) error {
	if p.Status.IsTerminal() {
		return errors.ErrPaymentAlreadyProcessed
	}

	var next PaymentStatus
	switch outcome {
	case Successful:
		next = StatusCompleted
	case Failed:
		next = StatusFailed
	default:
		return errors.NewDomainError(
			"invalid_transition",
			"cannot finalize payment with status "+string(outcome),
			errors.ErrInvalidStateTransition,
		)
	}

	now := time.Now()
	p.Status = next
	p.UpdatedAt = now
	if paidAt != nil {
		p.Date = *paidAt
	}
	return nil
}

// GenerateReference returns a random upper-case reference of the given
// length (clamped to 1..64).
func GenerateReference(length int) string {
	if length <= 0 {
		length = DefaultReferenceLength
	}
	if length > maxReferenceLength {
		length = maxReferenceLength
	}

	var b strings.Builder
	for b.Len() < length {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return strings.ToUpper(b.String()[:length])
}
