package testutil

import (
	"time"

	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/google/uuid"
)

// NewTestPayment returns an unprocessed payment for a@b.com.
func NewTestPayment(reference, processor string, amount float64) *payment.Payment {
	now := time.Now()
	return &payment.Payment{
		ID:        uuid.New(),
		Reference: reference,
		Email:     "a@b.com",
		Amount:    amount,
		Status:    payment.StatusUnprocessed,
		Processor: processor,
		Date:      now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Verified builds a successful verification result for reference.
func Verified(reference string, status payment.TransactionStatus, paidAt time.Time) payment.VerificationResult {
	return payment.VerificationResult{
		Status:      status,
		PaymentDate: &paidAt,
		Reference:   reference,
		Data: map[string]any{
			payment.KeyStatus:      status,
			payment.KeyReference:   reference,
			payment.KeyPaymentDate: paidAt,
		},
	}
}

// AuthorizationFor returns an initialization result pointing at a fake
// hosted checkout page.
func AuthorizationFor(reference string) payment.InitializationResult {
	return payment.InitializationResult{AuthorizationURL: "https://checkout.example.com/" + reference}
}
