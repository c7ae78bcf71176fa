package controller

import (
	"time"

	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/service"
)

// --- Request DTOs ---

// CheckoutRequest holds the input for starting a checkout. A zero amount
// falls back to the configured default.
type CheckoutRequest struct {
	Email    string         `json:"email" validate:"required,email"`
	Amount   float64        `json:"amount" validate:"gte=0,lte=9999999999.99"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// --- Response DTOs ---

// CheckoutResponse tells the client where to send the customer.
type CheckoutResponse struct {
	Reference        string  `json:"reference"`
	AuthorizationURL string  `json:"authorization_url"`
	Amount           float64 `json:"amount"`
	Processor        string  `json:"processor"`
}

// PaymentResponse represents a payment record in API responses.
type PaymentResponse struct {
	ID         string    `json:"id"`
	Reference  string    `json:"reference"`
	Email      string    `json:"email"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	StatusCode string    `json:"status_code"`
	Processor  string    `json:"processor"`
	Date       time.Time `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FinalizeResponse reports what a callback did to the payment.
type FinalizeResponse struct {
	Outcome string           `json:"outcome"`
	Payment *PaymentResponse `json:"payment"`
}

type ProcessorInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// ProcessorsResponse lists the active processor and every registered one.
type ProcessorsResponse struct {
	Active    ProcessorInfo   `json:"active"`
	Supported []ProcessorInfo `json:"supported"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromPayment converts a domain payment to API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:         p.ID.String(),
		Reference:  p.Reference,
		Email:      p.Email,
		Amount:     p.Amount,
		Status:     p.Status.Label(),
		StatusCode: string(p.Status),
		Processor:  p.Processor,
		Date:       p.Date,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func FromCheckout(res *service.CheckoutResult) *CheckoutResponse {
	return &CheckoutResponse{
		Reference:        res.Payment.Reference,
		AuthorizationURL: res.AuthorizationURL,
		Amount:           res.Payment.Amount,
		Processor:        res.Payment.Processor,
	}
}

func FromFinalize(res *service.FinalizeResult) *FinalizeResponse {
	resp := &FinalizeResponse{Outcome: string(res.Outcome)}
	if res.Payment != nil {
		resp.Payment = FromPayment(res.Payment)
	}
	return resp
}
